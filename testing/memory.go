// Package testing provides in-memory repository implementations and fixtures
// for exercising business flows and the dispatcher without PostgreSQL.
package testing

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/blastline/blastline-backend/models"
	"github.com/blastline/blastline-backend/repository"
	"github.com/blastline/blastline-backend/utils"
	"github.com/google/uuid"
)

// MemoryStore holds every collection behind one mutex. The coarse lock stands
// in for the row-level locking the production repositories get from Postgres.
// txMu serializes whole transactions, so multi-step read-check-write sequences
// keep the exclusivity the gorm repositories get from FOR UPDATE.
type MemoryStore struct {
	mu   sync.Mutex
	txMu sync.Mutex

	campaigns    map[uint]*models.Campaign
	recipients   map[uint]*models.Recipient
	wallets      map[uint]*models.Wallet
	reservations map[uint]*models.CreditReservation
	channels     map[uint]*models.Channel
	templates    map[uint]*models.Template
	events       []*models.DeliveryEvent
	clicks       []*models.ButtonClick
	audits       []*models.AuditLog

	nextID uint
}

// NewMemoryStore creates an empty in-memory store
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		campaigns:    make(map[uint]*models.Campaign),
		recipients:   make(map[uint]*models.Recipient),
		wallets:      make(map[uint]*models.Wallet),
		reservations: make(map[uint]*models.CreditReservation),
		channels:     make(map[uint]*models.Channel),
		templates:    make(map[uint]*models.Template),
	}
}

func (s *MemoryStore) id() uint {
	s.nextID++
	return s.nextID
}

// MemoryTransactor satisfies repository.Transactor. The store applies every
// write immediately, so rollback semantics are not emulated, but transactions
// exclude each other: a concurrent reserve cannot interleave with another
// wallet read-check-write. A nested WithTx joins the outer transaction, the
// way the production transactor joins an existing ctx transaction.
type MemoryTransactor struct {
	store *MemoryStore
}

type memTxKey struct{}

// WithTx runs fn while holding the store's transaction lock
func (t MemoryTransactor) WithTx(ctx context.Context, fn func(ctx context.Context) error) error {
	if t.store == nil || ctx.Value(memTxKey{}) != nil {
		return fn(ctx)
	}
	t.store.txMu.Lock()
	defer t.store.txMu.Unlock()
	return fn(context.WithValue(ctx, memTxKey{}, struct{}{}))
}

// --- campaigns ---

// MemoryCampaignRepository implements repository.CampaignRepository
type MemoryCampaignRepository struct {
	store *MemoryStore
}

// NewMemoryCampaignRepository creates a campaign repository over the store
func NewMemoryCampaignRepository(store *MemoryStore) *MemoryCampaignRepository {
	return &MemoryCampaignRepository{store: store}
}

func (r *MemoryCampaignRepository) ByID(ctx context.Context, id uint) (*models.Campaign, error) {
	r.store.mu.Lock()
	defer r.store.mu.Unlock()
	c, ok := r.store.campaigns[id]
	if !ok {
		return nil, nil
	}
	clone := *c
	return &clone, nil
}

func (r *MemoryCampaignRepository) ByUUID(ctx context.Context, u uuid.UUID) (*models.Campaign, error) {
	r.store.mu.Lock()
	defer r.store.mu.Unlock()
	for _, c := range r.store.campaigns {
		if c.UUID == u {
			clone := *c
			return &clone, nil
		}
	}
	return nil, nil
}

func (r *MemoryCampaignRepository) Save(ctx context.Context, campaign *models.Campaign) error {
	r.store.mu.Lock()
	defer r.store.mu.Unlock()
	if campaign.ID == 0 {
		campaign.ID = r.store.id()
	}
	if campaign.UUID == uuid.Nil {
		campaign.UUID = uuid.New()
	}
	if campaign.Status == "" {
		campaign.Status = models.CampaignStatusDraft
	}
	if campaign.CreatedAt.IsZero() {
		campaign.CreatedAt = utils.UTCNow()
	}
	clone := *campaign
	r.store.campaigns[campaign.ID] = &clone
	return nil
}

func (r *MemoryCampaignRepository) matches(c *models.Campaign, f models.CampaignFilter) bool {
	if f.ID != nil && c.ID != *f.ID {
		return false
	}
	if f.UUID != nil && c.UUID != *f.UUID {
		return false
	}
	if f.CustomerID != nil && c.CustomerID != *f.CustomerID {
		return false
	}
	if f.ChannelID != nil && c.ChannelID != *f.ChannelID {
		return false
	}
	if f.Status != nil && c.Status != *f.Status {
		return false
	}
	return true
}

func (r *MemoryCampaignRepository) ByFilter(ctx context.Context, filter models.CampaignFilter, orderBy string, limit, offset int) ([]*models.Campaign, error) {
	r.store.mu.Lock()
	defer r.store.mu.Unlock()

	var out []*models.Campaign
	for _, c := range r.store.campaigns {
		if r.matches(c, filter) {
			clone := *c
			out = append(out, &clone)
		}
	}

	desc := strings.Contains(strings.ToUpper(orderBy), "DESC")
	sort.Slice(out, func(i, j int) bool {
		if desc {
			return out[i].ID > out[j].ID
		}
		return out[i].ID < out[j].ID
	})

	if offset > 0 {
		if offset >= len(out) {
			return nil, nil
		}
		out = out[offset:]
	}
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (r *MemoryCampaignRepository) Count(ctx context.Context, filter models.CampaignFilter) (int64, error) {
	r.store.mu.Lock()
	defer r.store.mu.Unlock()
	var n int64
	for _, c := range r.store.campaigns {
		if r.matches(c, filter) {
			n++
		}
	}
	return n, nil
}

func (r *MemoryCampaignRepository) ListByStatus(ctx context.Context, status models.CampaignStatus, limit int) ([]*models.Campaign, error) {
	return r.ByFilter(ctx, models.CampaignFilter{Status: &status}, "id ASC", limit, 0)
}

func (r *MemoryCampaignRepository) UpdateStatus(ctx context.Context, id uint, from, to models.CampaignStatus, startedAt, completedAt *time.Time) (bool, error) {
	r.store.mu.Lock()
	defer r.store.mu.Unlock()
	c, ok := r.store.campaigns[id]
	if !ok || c.Status != from {
		return false, nil
	}
	c.Status = to
	if startedAt != nil {
		c.StartedAt = startedAt
	}
	if completedAt != nil {
		c.CompletedAt = completedAt
	}
	return true, nil
}

func (r *MemoryCampaignRepository) IncrementCounters(ctx context.Context, id uint, delta repository.CounterDelta) error {
	r.store.mu.Lock()
	defer r.store.mu.Unlock()
	c, ok := r.store.campaigns[id]
	if !ok {
		return nil
	}
	c.SentCount += delta.Sent
	c.DeliveredCount += delta.Delivered
	c.ReadCount += delta.Read
	c.FailedCount += delta.Failed
	return nil
}

// --- recipients ---

// MemoryRecipientRepository implements repository.RecipientRepository
type MemoryRecipientRepository struct {
	store *MemoryStore
}

// NewMemoryRecipientRepository creates a recipient repository over the store
func NewMemoryRecipientRepository(store *MemoryStore) *MemoryRecipientRepository {
	return &MemoryRecipientRepository{store: store}
}

func (r *MemoryRecipientRepository) ByID(ctx context.Context, id uint) (*models.Recipient, error) {
	r.store.mu.Lock()
	defer r.store.mu.Unlock()
	rec, ok := r.store.recipients[id]
	if !ok {
		return nil, nil
	}
	clone := *rec
	return &clone, nil
}

func (r *MemoryRecipientRepository) ByPlatformMessageID(ctx context.Context, platformMessageID string) (*models.Recipient, error) {
	r.store.mu.Lock()
	defer r.store.mu.Unlock()
	for _, rec := range r.store.recipients {
		if rec.PlatformMessageID != nil && *rec.PlatformMessageID == platformMessageID {
			clone := *rec
			return &clone, nil
		}
	}
	return nil, nil
}

func (r *MemoryRecipientRepository) SaveBatch(ctx context.Context, recipients []*models.Recipient) error {
	r.store.mu.Lock()
	defer r.store.mu.Unlock()
	for _, rec := range recipients {
		if rec.ID == 0 {
			rec.ID = r.store.id()
		}
		if rec.UUID == uuid.Nil {
			rec.UUID = uuid.New()
		}
		if rec.Status == "" {
			rec.Status = models.RecipientStatusPending
		}
		if rec.CreatedAt.IsZero() {
			rec.CreatedAt = utils.UTCNow()
		}
		clone := *rec
		r.store.recipients[rec.ID] = &clone
	}
	return nil
}

func (r *MemoryRecipientRepository) matches(rec *models.Recipient, f models.RecipientFilter) bool {
	if f.ID != nil && rec.ID != *f.ID {
		return false
	}
	if f.UUID != nil && rec.UUID != *f.UUID {
		return false
	}
	if f.CampaignID != nil && rec.CampaignID != *f.CampaignID {
		return false
	}
	if f.Phone != nil && rec.Phone != *f.Phone {
		return false
	}
	if f.Status != nil && rec.Status != *f.Status {
		return false
	}
	if f.PlatformMessageID != nil {
		if rec.PlatformMessageID == nil || *rec.PlatformMessageID != *f.PlatformMessageID {
			return false
		}
	}
	return true
}

func (r *MemoryRecipientRepository) ByFilter(ctx context.Context, filter models.RecipientFilter, orderBy string, limit, offset int) ([]*models.Recipient, error) {
	r.store.mu.Lock()
	defer r.store.mu.Unlock()

	var out []*models.Recipient
	for _, rec := range r.store.recipients {
		if r.matches(rec, filter) {
			clone := *rec
			out = append(out, &clone)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })

	if offset > 0 {
		if offset >= len(out) {
			return nil, nil
		}
		out = out[offset:]
	}
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (r *MemoryRecipientRepository) ListAdmissible(ctx context.Context, campaignID uint, limit int) ([]*models.Recipient, error) {
	pending := models.RecipientStatusPending
	return r.ByFilter(ctx, models.RecipientFilter{CampaignID: &campaignID, Status: &pending}, "id ASC", limit, 0)
}

func (r *MemoryRecipientRepository) ListStaleQueued(ctx context.Context, campaignID uint, olderThan time.Time, limit int) ([]*models.Recipient, error) {
	queued := models.RecipientStatusQueued
	all, err := r.ByFilter(ctx, models.RecipientFilter{CampaignID: &campaignID, Status: &queued}, "id ASC", 0, 0)
	if err != nil {
		return nil, err
	}
	var out []*models.Recipient
	for _, rec := range all {
		if rec.QueuedAt != nil && rec.QueuedAt.Before(olderThan) {
			out = append(out, rec)
			if limit > 0 && len(out) == limit {
				break
			}
		}
	}
	return out, nil
}

func (r *MemoryRecipientRepository) Transition(ctx context.Context, id uint, from, to models.RecipientStatus, upd repository.RecipientUpdate) (bool, error) {
	r.store.mu.Lock()
	defer r.store.mu.Unlock()
	rec, ok := r.store.recipients[id]
	if !ok || rec.Status != from {
		return false, nil
	}

	rec.Status = to
	if upd.PlatformMessageID != nil {
		rec.PlatformMessageID = upd.PlatformMessageID
	}
	if upd.FailureReason != nil {
		rec.FailureReason = upd.FailureReason
	}
	if upd.AttemptCount != nil {
		rec.AttemptCount = *upd.AttemptCount
	}
	if upd.QueuedAt != nil {
		rec.QueuedAt = upd.QueuedAt
	}
	if upd.SentAt != nil {
		rec.SentAt = upd.SentAt
	}
	if upd.DeliveredAt != nil {
		rec.DeliveredAt = upd.DeliveredAt
	}
	if upd.ReadAt != nil {
		rec.ReadAt = upd.ReadAt
	}
	if upd.TerminalAt != nil {
		rec.TerminalAt = upd.TerminalAt
	}
	if upd.LastEventAt != nil {
		rec.LastEventAt = upd.LastEventAt
	}
	now := utils.UTCNow()
	rec.UpdatedAt = &now
	return true, nil
}

func (r *MemoryRecipientRepository) TransitionAll(ctx context.Context, campaignID uint, from []models.RecipientStatus, to models.RecipientStatus, reason string, terminalAt time.Time) (int64, error) {
	r.store.mu.Lock()
	defer r.store.mu.Unlock()

	var moved int64
	for _, rec := range r.store.recipients {
		if rec.CampaignID != campaignID {
			continue
		}
		for _, f := range from {
			if rec.Status == f {
				rec.Status = to
				rec.FailureReason = &reason
				rec.TerminalAt = &terminalAt
				moved++
				break
			}
		}
	}
	return moved, nil
}

func (r *MemoryRecipientRepository) Histogram(ctx context.Context, campaignID uint) (models.Histogram, error) {
	r.store.mu.Lock()
	defer r.store.mu.Unlock()

	var hist models.Histogram
	for _, rec := range r.store.recipients {
		if rec.CampaignID != campaignID {
			continue
		}
		if bucket := hist.Bucket(rec.Status); bucket != nil {
			*bucket++
		}
	}
	return hist, nil
}

// --- wallets ---

// MemoryWalletRepository implements repository.WalletRepository
type MemoryWalletRepository struct {
	store *MemoryStore
}

// NewMemoryWalletRepository creates a wallet repository over the store
func NewMemoryWalletRepository(store *MemoryStore) *MemoryWalletRepository {
	return &MemoryWalletRepository{store: store}
}

func (r *MemoryWalletRepository) ByID(ctx context.Context, id uint) (*models.Wallet, error) {
	r.store.mu.Lock()
	defer r.store.mu.Unlock()
	w, ok := r.store.wallets[id]
	if !ok {
		return nil, nil
	}
	clone := *w
	return &clone, nil
}

func (r *MemoryWalletRepository) ByCustomerID(ctx context.Context, customerID uint) (*models.Wallet, error) {
	r.store.mu.Lock()
	defer r.store.mu.Unlock()
	for _, w := range r.store.wallets {
		if w.CustomerID == customerID {
			clone := *w
			return &clone, nil
		}
	}
	return nil, nil
}

func (r *MemoryWalletRepository) ByCustomerIDForUpdate(ctx context.Context, customerID uint) (*models.Wallet, error) {
	// The store lock already serializes; a separate row lock is not emulated.
	return r.ByCustomerID(ctx, customerID)
}

func (r *MemoryWalletRepository) Save(ctx context.Context, wallet *models.Wallet) error {
	r.store.mu.Lock()
	defer r.store.mu.Unlock()
	if wallet.ID == 0 {
		wallet.ID = r.store.id()
	}
	if wallet.UUID == uuid.Nil {
		wallet.UUID = uuid.New()
	}
	clone := *wallet
	r.store.wallets[wallet.ID] = &clone
	return nil
}

func (r *MemoryWalletRepository) AdjustBalances(ctx context.Context, walletID uint, freeDelta, reservedDelta, usedDelta int64) error {
	r.store.mu.Lock()
	defer r.store.mu.Unlock()
	w, ok := r.store.wallets[walletID]
	if !ok {
		return nil
	}
	w.FreeCredits = uint(int64(w.FreeCredits) + freeDelta)
	w.ReservedCredits = uint(int64(w.ReservedCredits) + reservedDelta)
	w.UsedCredits = uint(int64(w.UsedCredits) + usedDelta)
	return nil
}

// --- credit reservations ---

// MemoryCreditReservationRepository implements repository.CreditReservationRepository
type MemoryCreditReservationRepository struct {
	store *MemoryStore
}

// NewMemoryCreditReservationRepository creates a reservation repository over the store
func NewMemoryCreditReservationRepository(store *MemoryStore) *MemoryCreditReservationRepository {
	return &MemoryCreditReservationRepository{store: store}
}

func (r *MemoryCreditReservationRepository) ByID(ctx context.Context, id uint) (*models.CreditReservation, error) {
	r.store.mu.Lock()
	defer r.store.mu.Unlock()
	res, ok := r.store.reservations[id]
	if !ok {
		return nil, nil
	}
	clone := *res
	return &clone, nil
}

func (r *MemoryCreditReservationRepository) ByCampaignID(ctx context.Context, campaignID uint) (*models.CreditReservation, error) {
	r.store.mu.Lock()
	defer r.store.mu.Unlock()
	for _, res := range r.store.reservations {
		if res.CampaignID == campaignID {
			clone := *res
			return &clone, nil
		}
	}
	return nil, nil
}

func (r *MemoryCreditReservationRepository) Save(ctx context.Context, reservation *models.CreditReservation) error {
	r.store.mu.Lock()
	defer r.store.mu.Unlock()
	if reservation.ID == 0 {
		reservation.ID = r.store.id()
	}
	if reservation.UUID == uuid.Nil {
		reservation.UUID = uuid.New()
	}
	if reservation.Status == "" {
		reservation.Status = models.ReservationStatusActive
	}
	clone := *reservation
	r.store.reservations[reservation.ID] = &clone
	return nil
}

func (r *MemoryCreditReservationRepository) AddConsumed(ctx context.Context, id uint, units uint) (bool, error) {
	r.store.mu.Lock()
	defer r.store.mu.Unlock()
	res, ok := r.store.reservations[id]
	if !ok || res.Consumed+res.Released+units > res.Amount {
		return false, nil
	}
	res.Consumed += units
	return true, nil
}

func (r *MemoryCreditReservationRepository) AddReleased(ctx context.Context, id uint, units uint) (bool, error) {
	r.store.mu.Lock()
	defer r.store.mu.Unlock()
	res, ok := r.store.reservations[id]
	if !ok || res.Consumed+res.Released+units > res.Amount {
		return false, nil
	}
	res.Released += units
	return true, nil
}

func (r *MemoryCreditReservationRepository) Settle(ctx context.Context, id uint) error {
	r.store.mu.Lock()
	defer r.store.mu.Unlock()
	res, ok := r.store.reservations[id]
	if !ok {
		return nil
	}
	if res.Consumed+res.Released == res.Amount {
		res.Status = models.ReservationStatusSettled
	}
	return nil
}

// --- channels ---

// MemoryChannelRepository implements repository.ChannelRepository
type MemoryChannelRepository struct {
	store *MemoryStore
}

// NewMemoryChannelRepository creates a channel repository over the store
func NewMemoryChannelRepository(store *MemoryStore) *MemoryChannelRepository {
	return &MemoryChannelRepository{store: store}
}

func (r *MemoryChannelRepository) ByID(ctx context.Context, id uint) (*models.Channel, error) {
	r.store.mu.Lock()
	defer r.store.mu.Unlock()
	c, ok := r.store.channels[id]
	if !ok {
		return nil, nil
	}
	clone := *c
	return &clone, nil
}

func (r *MemoryChannelRepository) ByUUID(ctx context.Context, u uuid.UUID) (*models.Channel, error) {
	r.store.mu.Lock()
	defer r.store.mu.Unlock()
	for _, c := range r.store.channels {
		if c.UUID == u {
			clone := *c
			return &clone, nil
		}
	}
	return nil, nil
}

func (r *MemoryChannelRepository) Save(ctx context.Context, channel *models.Channel) error {
	r.store.mu.Lock()
	defer r.store.mu.Unlock()
	if channel.ID == 0 {
		channel.ID = r.store.id()
	}
	if channel.UUID == uuid.Nil {
		channel.UUID = uuid.New()
	}
	clone := *channel
	r.store.channels[channel.ID] = &clone
	return nil
}

func (r *MemoryChannelRepository) UpdateStatus(ctx context.Context, id uint, status models.ChannelStatus) error {
	r.store.mu.Lock()
	defer r.store.mu.Unlock()
	if c, ok := r.store.channels[id]; ok {
		c.Status = status
	}
	return nil
}

// --- templates ---

// MemoryTemplateRepository implements repository.TemplateRepository
type MemoryTemplateRepository struct {
	store *MemoryStore
}

// NewMemoryTemplateRepository creates a template repository over the store
func NewMemoryTemplateRepository(store *MemoryStore) *MemoryTemplateRepository {
	return &MemoryTemplateRepository{store: store}
}

func (r *MemoryTemplateRepository) ByID(ctx context.Context, id uint) (*models.Template, error) {
	r.store.mu.Lock()
	defer r.store.mu.Unlock()
	t, ok := r.store.templates[id]
	if !ok {
		return nil, nil
	}
	clone := *t
	return &clone, nil
}

func (r *MemoryTemplateRepository) ByUUID(ctx context.Context, u uuid.UUID) (*models.Template, error) {
	r.store.mu.Lock()
	defer r.store.mu.Unlock()
	for _, t := range r.store.templates {
		if t.UUID == u {
			clone := *t
			return &clone, nil
		}
	}
	return nil, nil
}

func (r *MemoryTemplateRepository) Save(ctx context.Context, template *models.Template) error {
	r.store.mu.Lock()
	defer r.store.mu.Unlock()
	if template.ID == 0 {
		template.ID = r.store.id()
	}
	if template.UUID == uuid.Nil {
		template.UUID = uuid.New()
	}
	clone := *template
	r.store.templates[template.ID] = &clone
	return nil
}

// --- delivery events ---

// MemoryDeliveryEventRepository implements repository.DeliveryEventRepository
type MemoryDeliveryEventRepository struct {
	store *MemoryStore
}

// NewMemoryDeliveryEventRepository creates a delivery event repository over the store
func NewMemoryDeliveryEventRepository(store *MemoryStore) *MemoryDeliveryEventRepository {
	return &MemoryDeliveryEventRepository{store: store}
}

func (r *MemoryDeliveryEventRepository) Save(ctx context.Context, event *models.DeliveryEvent) error {
	r.store.mu.Lock()
	defer r.store.mu.Unlock()
	if event.ID == 0 {
		event.ID = r.store.id()
	}
	clone := *event
	r.store.events = append(r.store.events, &clone)
	return nil
}

func (r *MemoryDeliveryEventRepository) ListByRecipient(ctx context.Context, recipientID uint) ([]*models.DeliveryEvent, error) {
	r.store.mu.Lock()
	defer r.store.mu.Unlock()
	var out []*models.DeliveryEvent
	for _, e := range r.store.events {
		if e.RecipientID == recipientID {
			clone := *e
			out = append(out, &clone)
		}
	}
	return out, nil
}

// --- button clicks ---

// MemoryButtonClickRepository implements repository.ButtonClickRepository
type MemoryButtonClickRepository struct {
	store *MemoryStore
}

// NewMemoryButtonClickRepository creates a button click repository over the store
func NewMemoryButtonClickRepository(store *MemoryStore) *MemoryButtonClickRepository {
	return &MemoryButtonClickRepository{store: store}
}

func (r *MemoryButtonClickRepository) Save(ctx context.Context, click *models.ButtonClick) error {
	r.store.mu.Lock()
	defer r.store.mu.Unlock()
	if click.ID == 0 {
		click.ID = r.store.id()
	}
	clone := *click
	r.store.clicks = append(r.store.clicks, &clone)
	return nil
}

func (r *MemoryButtonClickRepository) ListByCampaign(ctx context.Context, campaignID uint, limit, offset int) ([]*models.ButtonClick, error) {
	r.store.mu.Lock()
	defer r.store.mu.Unlock()
	var out []*models.ButtonClick
	for _, c := range r.store.clicks {
		if c.CampaignID == campaignID {
			clone := *c
			out = append(out, &clone)
		}
	}
	if offset > 0 {
		if offset >= len(out) {
			return nil, nil
		}
		out = out[offset:]
	}
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

// --- audit logs ---

// MemoryAuditLogRepository implements repository.AuditLogRepository
type MemoryAuditLogRepository struct {
	store *MemoryStore
}

// NewMemoryAuditLogRepository creates an audit log repository over the store
func NewMemoryAuditLogRepository(store *MemoryStore) *MemoryAuditLogRepository {
	return &MemoryAuditLogRepository{store: store}
}

func (r *MemoryAuditLogRepository) Save(ctx context.Context, entry *models.AuditLog) error {
	r.store.mu.Lock()
	defer r.store.mu.Unlock()
	if entry.ID == 0 {
		entry.ID = r.store.id()
	}
	clone := *entry
	r.store.audits = append(r.store.audits, &clone)
	return nil
}

func (r *MemoryAuditLogRepository) ListByCampaign(ctx context.Context, campaignID uint, limit, offset int) ([]*models.AuditLog, error) {
	r.store.mu.Lock()
	defer r.store.mu.Unlock()
	var out []*models.AuditLog
	for _, a := range r.store.audits {
		if a.CampaignID != nil && *a.CampaignID == campaignID {
			clone := *a
			out = append(out, &clone)
		}
	}
	if offset > 0 {
		if offset >= len(out) {
			return nil, nil
		}
		out = out[offset:]
	}
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}
