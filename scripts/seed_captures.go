package main

import (
	"database/sql"
	"encoding/base64"
	"fmt"
	"log"
	"math/rand"
	"time"

	"github.com/google/uuid"
	_ "github.com/mattn/go-sqlite3"
)

var sampleTranscripts = []string{
	"Pick up the dry cleaning before six",
	"Idea for the garden: raised beds along the back fence",
	"Call the dentist about the appointment next week",
	"Meeting notes: ship the onboarding flow by Friday",
	"Grocery run: milk, eggs, coffee, bread",
	"Remember the receipt for the standing desk",
	"Book recommendation from Sam: The Goal",
	"Measure the hallway before ordering the bookshelf",
	"Gift ideas for mom's birthday",
	"Car makes a rattling noise above sixty",
	"Wifi password for the cabin is on the fridge",
	"Follow up with the plumber about the quote",
}

func shortToken() string {
	id := uuid.New()
	return base64.RawURLEncoding.EncodeToString(id[:])
}

func main() {
	db, err := sql.Open("sqlite3", "./capturebox.db")
	if err != nil {
		log.Fatal(err)
	}
	defer db.Close()

	// Seed captures for user 1
	var userID int
	if err := db.QueryRow("SELECT id FROM users ORDER BY id LIMIT 1").Scan(&userID); err != nil {
		log.Fatalf("Could not find a user to seed captures for: %v", err)
	}

	fmt.Printf("Seeding captures for user ID: %d\n", userID)

	now := time.Now()
	threeMonthsAgo := now.AddDate(0, -3, 0)
	inserted := 0

	for day := threeMonthsAgo; day.Before(now); day = day.AddDate(0, 0, 1) {
		// Random number of captures per day (0-2)
		numCaptures := rand.Intn(3)
		for i := 0; i < numCaptures; i++ {
			hour := rand.Intn(14) + 8 // 8 AM to 10 PM
			minute := rand.Intn(60)
			createdAt := time.Date(day.Year(), day.Month(), day.Day(), hour, minute, 0, 0, day.Location())

			transcript := sampleTranscripts[rand.Intn(len(sampleTranscripts))]
			complete := rand.Intn(2) == 1

			_, err := db.Exec(
				"INSERT INTO captures (uuid, short_uuid, owner_id, voice_transcript, is_complete, created_at, updated_at) VALUES (?, ?, ?, ?, ?, ?, ?)",
				uuid.NewString(), shortToken(), userID, transcript, complete, createdAt, createdAt,
			)
			if err != nil {
				log.Printf("Error inserting capture: %v", err)
				continue
			}
			inserted++
		}
	}

	fmt.Printf("Inserted %d captures for user %d over the past three months\n", inserted, userID)
}
