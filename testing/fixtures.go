package testing

import (
	"context"

	"github.com/blastline/blastline-backend/models"
)

// Env bundles the in-memory store with one repository of each kind, wired the
// way main wires the production ones.
type Env struct {
	Store *MemoryStore

	Campaigns    *MemoryCampaignRepository
	Recipients   *MemoryRecipientRepository
	Wallets      *MemoryWalletRepository
	Reservations *MemoryCreditReservationRepository
	Channels     *MemoryChannelRepository
	Templates    *MemoryTemplateRepository
	Events       *MemoryDeliveryEventRepository
	Clicks       *MemoryButtonClickRepository
	Audits       *MemoryAuditLogRepository

	Tx MemoryTransactor
}

// NewEnv creates a fresh environment
func NewEnv() *Env {
	store := NewMemoryStore()
	return &Env{
		Store:        store,
		Campaigns:    NewMemoryCampaignRepository(store),
		Recipients:   NewMemoryRecipientRepository(store),
		Wallets:      NewMemoryWalletRepository(store),
		Reservations: NewMemoryCreditReservationRepository(store),
		Channels:     NewMemoryChannelRepository(store),
		Templates:    NewMemoryTemplateRepository(store),
		Events:       NewMemoryDeliveryEventRepository(store),
		Clicks:       NewMemoryButtonClickRepository(store),
		Audits:       NewMemoryAuditLogRepository(store),
		Tx:           MemoryTransactor{store: store},
	}
}

// SeedWallet creates a wallet with the given free balance
func (e *Env) SeedWallet(customerID, freeCredits uint) *models.Wallet {
	wallet := &models.Wallet{
		CustomerID:  customerID,
		FreeCredits: freeCredits,
	}
	_ = e.Wallets.Save(context.Background(), wallet)
	return wallet
}

// SeedChannel creates an active channel for the customer
func (e *Env) SeedChannel(customerID uint) *models.Channel {
	channel := &models.Channel{
		CustomerID:        customerID,
		PhoneNumber:       "+15550001111",
		Status:            models.ChannelStatusActive,
		MessagesPerSecond: 100,
	}
	_ = e.Channels.Save(context.Background(), channel)
	return channel
}

// SeedTemplate creates an approved template
func (e *Env) SeedTemplate() *models.Template {
	template := &models.Template{
		Name:          "order_update",
		Language:      "en",
		Body:          "Hi {{1}}, your order {{2}} has shipped.",
		VariableCount: 2,
		Status:        models.TemplateStatusApproved,
	}
	_ = e.Templates.Save(context.Background(), template)
	return template
}
