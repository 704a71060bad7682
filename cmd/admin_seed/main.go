// Seeds the admin account plus a demo agent with published rate offers.
package main

import (
	"log"
	"os"

	"zone4/internal/config"
	"zone4/internal/models"
	"zone4/internal/repositories"

	"golang.org/x/crypto/bcrypt"
)

func main() {
	config.LoadEnv()

	adminEmail := os.Getenv("ADMIN_EMAIL")
	adminPassword := os.Getenv("ADMIN_PASSWORD")
	adminPhone := os.Getenv("ADMIN_PHONE")

	if adminEmail == "" || adminPassword == "" || adminPhone == "" {
		log.Fatal("ADMIN_EMAIL, ADMIN_PASSWORD, and ADMIN_PHONE must be set in environment")
	}

	if err := repositories.InitDB(); err != nil {
		log.Fatalf("Failed to initialize databases: %v", err)
	}
	defer func() {
		if repositories.DB != nil {
			sqlDB, err := repositories.DB.DB()
			if err != nil {
				log.Printf("⚠️ Failed to get SQL DB instance: %v", err)
			} else if err := sqlDB.Close(); err != nil {
				log.Printf("⚠️ Failed to close PostgreSQL connection: %v", err)
			}
		}
		if repositories.CacheService != nil {
			if err := repositories.CacheService.Close(); err != nil {
				log.Printf("⚠️ Failed to close Redis connection: %v", err)
			}
		}
	}()

	seedAdmin(adminEmail, adminPassword, adminPhone)

	if os.Getenv("SEED_DEMO_AGENT") == "true" {
		seedDemoAgent()
	}
}

func seedAdmin(email, password, phone string) {
	var existing models.User
	if err := repositories.DB.Where("email = ?", email).First(&existing).Error; err == nil {
		log.Println("Admin user already exists")
		return
	}

	hashedPassword, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		log.Fatal("Failed to hash password:", err)
	}

	admin := models.User{
		Email:        email,
		Password:     string(hashedPassword),
		Name:         "Administrator",
		Phone:        phone,
		Role:         models.RoleAdmin,
		TokenVersion: 1,
	}

	if err := repositories.DB.Create(&admin).Error; err != nil {
		log.Fatal("Failed to create admin user:", err)
	}

	log.Println("✅ Admin account created successfully!")
}

func seedDemoAgent() {
	var existing models.User
	if err := repositories.DB.Where("email = ?", "agent@zone4.demo").First(&existing).Error; err == nil {
		log.Println("Demo agent already exists")
		return
	}

	hashedPassword, err := bcrypt.GenerateFromPassword([]byte("Demo-Agent-1!"), bcrypt.DefaultCost)
	if err != nil {
		log.Fatal("Failed to hash password:", err)
	}

	agent := models.User{
		Email:        "agent@zone4.demo",
		Password:     string(hashedPassword),
		Name:         "Demo BDC Agent",
		Phone:        "+2348000000001",
		Role:         models.RoleAgent,
		KYCStatus:    models.KYCStatusVerified,
		TokenVersion: 1,
	}
	if err := repositories.DB.Create(&agent).Error; err != nil {
		log.Fatal("Failed to create demo agent:", err)
	}

	profile := models.AgentProfile{
		UserID:           agent.ID,
		CompanyName:      "Zone4 Demo Bureau de Change",
		CBNLicenseNumber: "BDC-DEMO-0001",
		IsVerified:       true,
	}
	if err := repositories.DB.Create(&profile).Error; err != nil {
		log.Fatal("Failed to create demo agent profile:", err)
	}

	offers := []models.RateOffer{
		{AgentID: agent.ID, CurrencyFrom: "USD", CurrencyTo: "NGN", Rate: 1500, MinAmount: 10, MaxAmount: 10000, IsActive: true},
		{AgentID: agent.ID, CurrencyFrom: "GBP", CurrencyTo: "NGN", Rate: 1900, MinAmount: 10, MaxAmount: 5000, IsActive: true},
		{AgentID: agent.ID, CurrencyFrom: "EUR", CurrencyTo: "NGN", Rate: 1650, MinAmount: 10, MaxAmount: 5000, IsActive: true},
	}
	for _, offer := range offers {
		if err := repositories.DB.Create(&offer).Error; err != nil {
			log.Fatal("Failed to create demo rate offer:", err)
		}
	}

	log.Println("✅ Demo agent and rate offers created successfully!")
}
