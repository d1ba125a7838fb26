package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	domainlistings "zedflip/internal/domain/listings"
	"zedflip/internal/domain/shared/money"
	domainuser "zedflip/internal/domain/user"
)

// fixturePassword is shared by every seeded account.
const fixturePassword = "zedflip-demo"

type fixtureFile struct {
	Users    []userFixture    `json:"users"`
	Listings []listingFixture `json:"listings"`
}

type userFixture struct {
	ID    string `json:"id"`
	Email string `json:"email"`
	Name  string `json:"name"`
	Phone string `json:"phone"`
	City  string `json:"city"`
}

type listingFixture struct {
	ID           string   `json:"id"`
	Seller       string   `json:"seller"`
	Title        string   `json:"title"`
	Description  string   `json:"description"`
	Price        float64  `json:"price"`
	Category     string   `json:"category"`
	Condition    string   `json:"condition"`
	City         string   `json:"city"`
	Location     string   `json:"location"`
	Tags         []string `json:"tags"`
	IsNegotiable bool     `json:"isNegotiable"`
}

func (a *application) loadFixtures(ctx context.Context, path string, logger *slog.Logger) error {
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			logger.Info("fixtures file not found, skipping", "path", path)
			return nil
		}
		return fmt.Errorf("read fixtures: %w", err)
	}
	var fixtures fixtureFile
	if err := json.Unmarshal(data, &fixtures); err != nil {
		return fmt.Errorf("decode fixtures: %w", err)
	}

	now := time.Now().UTC()
	if len(fixtures.Users) > 0 {
		hash, err := a.hasher.Hash(fixturePassword)
		if err != nil {
			return fmt.Errorf("hash fixture password: %w", err)
		}
		for _, fx := range fixtures.Users {
			if _, err := a.users.ByID(ctx, domainuser.ID(fx.ID)); err == nil {
				continue
			}
			user, err := domainuser.NewUser(domainuser.CreateParams{
				ID:           domainuser.ID(fx.ID),
				Email:        fx.Email,
				Name:         fx.Name,
				Phone:        fx.Phone,
				City:         fx.City,
				PasswordHash: hash,
				CreatedAt:    now,
			})
			if err != nil {
				logger.Error("fixture user invalid", "user_id", fx.ID, "error", err)
				continue
			}
			if err := a.users.Save(ctx, user); err != nil {
				logger.Error("cannot store fixture user", "user_id", fx.ID, "error", err)
			}
		}
	}

	for _, fx := range fixtures.Listings {
		if _, err := a.listings.ByID(ctx, domainlistings.ListingID(fx.ID)); err == nil {
			continue
		}
		price, err := money.Kwacha(fx.Price)
		if err != nil {
			logger.Error("fixture price invalid", "listing_id", fx.ID, "error", err)
			continue
		}
		listing, err := domainlistings.NewListing(domainlistings.CreateListingParams{
			ID:     domainlistings.ListingID(fx.ID),
			Seller: domainuser.ID(fx.Seller),
			Details: domainlistings.Details{
				Title:        fx.Title,
				Description:  fx.Description,
				Price:        price,
				Category:     fx.Category,
				Condition:    domainlistings.Condition(fx.Condition),
				City:         fx.City,
				Location:     fx.Location,
				Tags:         append([]string(nil), fx.Tags...),
				IsNegotiable: fx.IsNegotiable,
			},
			Now: now,
		})
		if err != nil {
			logger.Error("fixture listing invalid", "listing_id", fx.ID, "error", err)
			continue
		}
		listing.ClearEvents()
		if err := a.listings.Save(ctx, listing); err != nil {
			logger.Error("cannot store fixture listing", "listing_id", fx.ID, "error", err)
			continue
		}
		logger.Info("listing fixture imported", "listing_id", listing.ID)
	}
	return nil
}

func fixturesPath() string {
	if path := os.Getenv("FIXTURES_PATH"); path != "" {
		return path
	}
	return filepath.Join("data", "fixtures.json")
}
