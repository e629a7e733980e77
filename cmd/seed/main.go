package main

import (
	"database/sql"
	"fmt"
	"log"

	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/joho/godotenv"

	"github.com/usagelab/mobile-usage-api/config"
)

type seedUser struct {
	userID int
	age    int
	gender string

	deviceModel string
	deviceOS    string
	apps        int

	usageTime    int
	screenOn     float64
	batteryDrain float64
	dataUsage    float64

	behaviorClass int
}

var samples = []seedUser{
	{1, 30, "M", "Google Pixel 5", "Android", 67, 393, 6.4, 1872, 1122, 4},
	{2, 23, "F", "iPhone 12", "iOS", 74, 268, 4.7, 1331, 944, 3},
	{3, 41, "M", "Samsung Galaxy S21", "Android", 42, 154, 4.0, 941, 322, 2},
	{4, 35, "F", "OnePlus 9", "Android", 20, 187, 4.3, 1082, 564, 3},
	{5, 28, "M", "Xiaomi Mi 11", "Android", 93, 99, 2.0, 431, 199, 1},
}

func main() {
	_ = godotenv.Load()
	cfg := config.Load()

	db, err := sql.Open("pgx", cfg.PostgresDSN())
	if err != nil {
		log.Fatalf("failed to open db: %v", err)
	}
	defer func() { _ = db.Close() }()

	for _, s := range samples {
		if _, err := db.Exec(`
			INSERT INTO users (user_id, age, gender)
			VALUES ($1, $2, $3)
			ON CONFLICT (user_id) DO UPDATE SET age = EXCLUDED.age, gender = EXCLUDED.gender
		`, s.userID, s.age, s.gender); err != nil {
			log.Fatalf("failed to seed user %d: %v", s.userID, err)
		}
		if _, err := db.Exec(`
			INSERT INTO devices (user_id, device_model, operating_system, number_of_apps_installed)
			VALUES ($1, $2, $3, $4)
		`, s.userID, s.deviceModel, s.deviceOS, s.apps); err != nil {
			log.Fatalf("failed to seed device for user %d: %v", s.userID, err)
		}
		if _, err := db.Exec(`
			INSERT INTO appusage (user_id, app_usage_time, screen_on_time, battery_drain, data_usage)
			VALUES ($1, $2, $3, $4, $5)
		`, s.userID, s.usageTime, s.screenOn, s.batteryDrain, s.dataUsage); err != nil {
			log.Fatalf("failed to seed app usage for user %d: %v", s.userID, err)
		}
		if _, err := db.Exec(`
			INSERT INTO userbehavior (user_id, user_behavior_class)
			VALUES ($1, $2)
		`, s.userID, s.behaviorClass); err != nil {
			log.Fatalf("failed to seed behavior for user %d: %v", s.userID, err)
		}
		fmt.Printf("seeded user %d (%s, %s)\n", s.userID, s.deviceModel, s.deviceOS)
	}
	fmt.Printf("seeded %d users\n", len(samples))
}
