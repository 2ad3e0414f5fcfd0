package service

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/rl1809/labstock/internal/core/domain"
	"github.com/rl1809/labstock/internal/port"
)

var (
	ErrNotFound           = errors.New("not found")
	ErrDuplicateItem      = errors.New("item id already exists")
	ErrDuplicateUsername  = errors.New("username already exists")
	ErrInvalidItem        = errors.New("invalid item")
	ErrInvalidMovement    = errors.New("invalid movement")
	ErrInvalidSupplier    = errors.New("invalid supplier")
	ErrInvalidUser        = errors.New("invalid user")
	ErrUnknownItem        = errors.New("movement references unknown item")
	ErrInvalidCredentials = errors.New("invalid username or password")
)

// state is one consistent view of everything the service owns.
type state struct {
	items        []domain.InventoryItem
	transactions []domain.Transaction
	suppliers    []domain.Supplier
	users        []domain.UserAccount
	config       domain.SyncConfig
}

func (st state) clone() state {
	return state{
		items:        slices.Clone(st.items),
		transactions: slices.Clone(st.transactions),
		suppliers:    slices.Clone(st.suppliers),
		users:        slices.Clone(st.users),
		config:       st.config,
	}
}

func (st state) snapshot() domain.Snapshot {
	return domain.Snapshot{
		Items:        slices.Clone(st.items),
		Suppliers:    slices.Clone(st.suppliers),
		Users:        slices.Clone(st.users),
		Transactions: slices.Clone(st.transactions),
	}
}

func (st state) value(name string) any {
	switch name {
	case keyItems:
		return st.items
	case keyTransactions:
		return st.transactions
	case keySuppliers:
		return st.suppliers
	case keyUsers:
		return st.users
	case keyEndpointURL:
		return st.config.EndpointURL
	case keyShareURL:
		return st.config.ShareURL
	case keyAutoSync:
		return st.config.AutoSync
	}
	panic("unknown state key " + name)
}

type InventoryOptions struct {
	// StrictItemRefs rejects movements for unknown items instead of
	// recording them with no stock effect.
	StrictItemRefs bool
	Now            func() time.Time
	NewID          func() string
}

// InventoryService owns the item catalog, the transaction log, suppliers,
// users and sync configuration. Every mutation is persisted before it
// becomes visible, and only then handed to the syncer.
type InventoryService struct {
	mu     sync.RWMutex
	st     state
	store  *LocalStore
	syncer port.Syncer
	logger *zap.Logger
	opts   InventoryOptions
}

func NewInventoryService(store *LocalStore, logger *zap.Logger, opts InventoryOptions) *InventoryService {
	if logger == nil {
		logger = zap.NewNop()
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	if opts.NewID == nil {
		opts.NewID = func() string { return uuid.New().String() }
	}
	return &InventoryService{
		store:  store,
		logger: logger,
		opts:   opts,
	}
}

// AttachSyncer wires the sync engine in after construction; the engine in
// turn reads from this service, so neither can be built first.
func (s *InventoryService) AttachSyncer(syncer port.Syncer) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.syncer = syncer
}

// Load reads all collections and configuration from the local store,
// falling back to the seed dataset for anything never written.
func (s *InventoryService) Load(ctx context.Context) error {
	var (
		st  state
		err error
	)
	if st.items, err = load(ctx, s.store, keyItems, domain.SeedItems); err != nil {
		return err
	}
	if st.transactions, err = load(ctx, s.store, keyTransactions, func() []domain.Transaction { return []domain.Transaction{} }); err != nil {
		return err
	}
	if st.suppliers, err = load(ctx, s.store, keySuppliers, domain.SeedSuppliers); err != nil {
		return err
	}
	if st.users, err = load(ctx, s.store, keyUsers, domain.SeedUsers); err != nil {
		return err
	}
	emptyString := func() string { return "" }
	if st.config.EndpointURL, err = load(ctx, s.store, keyEndpointURL, emptyString); err != nil {
		return err
	}
	if st.config.ShareURL, err = load(ctx, s.store, keyShareURL, emptyString); err != nil {
		return err
	}
	if st.config.AutoSync, err = load(ctx, s.store, keyAutoSync, func() bool { return false }); err != nil {
		return err
	}

	s.mu.Lock()
	s.st = st
	s.mu.Unlock()

	s.logger.Info("inventory loaded",
		zap.Int("items", len(st.items)),
		zap.Int("transactions", len(st.transactions)),
		zap.Int("suppliers", len(st.suppliers)),
		zap.Int("users", len(st.users)),
	)
	return nil
}

// mutation edits next in place and returns the keys it touched.
type mutation func(next *state) ([]string, error)

// commit runs fn against a copy of the current state, persists the touched
// keys in one write and swaps the copy in. A push is scheduled afterwards
// when a collection changed and auto-sync is on, unless quiet is set.
func (s *InventoryService) commit(ctx context.Context, quiet bool, fn mutation) error {
	s.mu.Lock()
	next := s.st.clone()
	dirty, err := fn(&next)
	if err != nil {
		s.mu.Unlock()
		return err
	}

	values := make(map[string]any, len(dirty))
	for _, name := range dirty {
		values[name] = next.value(name)
	}
	if err := s.store.saveAll(ctx, values); err != nil {
		s.mu.Unlock()
		return err
	}
	s.st = next
	syncer := s.syncer
	s.mu.Unlock()

	if quiet || !next.config.AutoSync || syncer == nil || !touchesCollection(dirty) {
		return nil
	}
	if err := syncer.SchedulePush(next.snapshot()); err != nil {
		s.logger.Warn("auto-sync push not scheduled", zap.Error(err))
	}
	return nil
}

func touchesCollection(keys []string) bool {
	for _, k := range keys {
		switch k {
		case keyItems, keyTransactions, keySuppliers, keyUsers:
			return true
		}
	}
	return false
}

func (s *InventoryService) today() string {
	return s.opts.Now().Format(domain.DateLayout)
}

func (s *InventoryService) Items() []domain.InventoryItem {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return slices.Clone(s.st.items)
}

func (s *InventoryService) Item(id string) (domain.InventoryItem, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	i := slices.IndexFunc(s.st.items, func(it domain.InventoryItem) bool { return it.ID == id })
	if i < 0 {
		return domain.InventoryItem{}, fmt.Errorf("item %s: %w", id, ErrNotFound)
	}
	return s.st.items[i], nil
}

func (s *InventoryService) Transactions() []domain.Transaction {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return slices.Clone(s.st.transactions)
}

func (s *InventoryService) Suppliers() []domain.Supplier {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return slices.Clone(s.st.suppliers)
}

func (s *InventoryService) Users() []domain.UserAccount {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return slices.Clone(s.st.users)
}

func (s *InventoryService) SyncConfig() domain.SyncConfig {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.st.config
}

func (s *InventoryService) Snapshot() domain.Snapshot {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.st.snapshot()
}

// Catalog

func (s *InventoryService) AddItem(ctx context.Context, item domain.InventoryItem) (domain.InventoryItem, error) {
	if strings.TrimSpace(item.Name) == "" || item.Stock < 0 || item.MinStock < 0 {
		return domain.InventoryItem{}, ErrInvalidItem
	}
	if item.ID == "" {
		item.ID = s.opts.NewID()
	}
	if item.LastUpdated == "" {
		item.LastUpdated = s.today()
	}

	err := s.commit(ctx, false, func(next *state) ([]string, error) {
		if slices.ContainsFunc(next.items, func(it domain.InventoryItem) bool { return it.ID == item.ID }) {
			return nil, fmt.Errorf("item %s: %w", item.ID, ErrDuplicateItem)
		}
		next.items = append(next.items, item)
		return []string{keyItems}, nil
	})
	if err != nil {
		return domain.InventoryItem{}, err
	}
	return item, nil
}

// UpdateItem replaces the descriptive fields of an item. Stock is kept at
// its stored value: it only moves through recorded transactions.
func (s *InventoryService) UpdateItem(ctx context.Context, item domain.InventoryItem) (domain.InventoryItem, error) {
	if strings.TrimSpace(item.Name) == "" || item.MinStock < 0 {
		return domain.InventoryItem{}, ErrInvalidItem
	}

	var updated domain.InventoryItem
	err := s.commit(ctx, false, func(next *state) ([]string, error) {
		i := slices.IndexFunc(next.items, func(it domain.InventoryItem) bool { return it.ID == item.ID })
		if i < 0 {
			return nil, fmt.Errorf("item %s: %w", item.ID, ErrNotFound)
		}
		item.Stock = next.items[i].Stock
		if item.LastUpdated == "" {
			item.LastUpdated = next.items[i].LastUpdated
		}
		next.items[i] = item
		updated = item
		return []string{keyItems}, nil
	})
	return updated, err
}

func (s *InventoryService) DeleteItem(ctx context.Context, id string) error {
	return s.commit(ctx, false, func(next *state) ([]string, error) {
		i := slices.IndexFunc(next.items, func(it domain.InventoryItem) bool { return it.ID == id })
		if i < 0 {
			return nil, fmt.Errorf("item %s: %w", id, ErrNotFound)
		}
		next.items = slices.Delete(next.items, i, i+1)
		return []string{keyItems}, nil
	})
}

// ReplaceItems swaps in a catalog fetched from the remote mirror. It does
// not schedule a push.
func (s *InventoryService) ReplaceItems(ctx context.Context, items []domain.InventoryItem) error {
	return s.commit(ctx, true, func(next *state) ([]string, error) {
		next.items = cloneOrEmpty(items)
		return []string{keyItems}, nil
	})
}

// Movements

// RecordMovement applies a single stock movement.
func (s *InventoryService) RecordMovement(ctx context.Context, tx domain.Transaction) (domain.Transaction, error) {
	recorded, err := s.RecordMovements(ctx, []domain.Transaction{tx})
	if err != nil {
		return domain.Transaction{}, err
	}
	return recorded[0], nil
}

// RecordMovements applies a batch of movements (an outbound cart) as one
// persisted write: the catalog and the log are saved together.
func (s *InventoryService) RecordMovements(ctx context.Context, txs []domain.Transaction) ([]domain.Transaction, error) {
	if len(txs) == 0 {
		return nil, fmt.Errorf("%w: empty batch", ErrInvalidMovement)
	}
	for _, tx := range txs {
		if !tx.Type.Valid() {
			return nil, fmt.Errorf("%w: type %q", ErrInvalidMovement, tx.Type)
		}
		if tx.Quantity <= 0 {
			return nil, fmt.Errorf("%w: quantity must be positive", ErrInvalidMovement)
		}
		if tx.ItemID == "" {
			return nil, fmt.Errorf("%w: missing item id", ErrInvalidMovement)
		}
	}

	var recorded []domain.Transaction
	var unmatched []string
	err := s.commit(ctx, false, func(next *state) ([]string, error) {
		prepared := make([]domain.Transaction, 0, len(txs))
		for _, tx := range txs {
			if tx.ID == "" {
				tx.ID = s.opts.NewID()
			}
			if tx.Date == "" {
				tx.Date = s.today()
			}
			if i := slices.IndexFunc(next.items, func(it domain.InventoryItem) bool { return it.ID == tx.ItemID }); i >= 0 {
				it := next.items[i]
				tx.ItemName = cmpOr(tx.ItemName, it.Name)
				tx.LotNumber = cmpOr(tx.LotNumber, it.LotNumber)
				tx.Unit = cmpOr(tx.Unit, it.Unit)
			} else if s.opts.StrictItemRefs {
				return nil, fmt.Errorf("item %s: %w", tx.ItemID, ErrUnknownItem)
			}
			prepared = append(prepared, tx)
		}

		result := ApplyTransactions(next.items, next.transactions, prepared)
		next.items = result.Items
		next.transactions = result.Transactions
		recorded = prepared
		unmatched = result.Unmatched
		return []string{keyItems, keyTransactions}, nil
	})
	if err != nil {
		return nil, err
	}

	for _, id := range unmatched {
		s.logger.Warn("movement recorded for unknown item", zap.String("item_id", id))
	}
	return recorded, nil
}

func cmpOr(v, fallback string) string {
	if v != "" {
		return v
	}
	return fallback
}

// Suppliers

func (s *InventoryService) AddSupplier(ctx context.Context, sup domain.Supplier) (domain.Supplier, error) {
	if strings.TrimSpace(sup.Name) == "" {
		return domain.Supplier{}, fmt.Errorf("%w: name required", ErrInvalidSupplier)
	}
	if sup.ID == "" {
		sup.ID = s.opts.NewID()
	}
	err := s.commit(ctx, false, func(next *state) ([]string, error) {
		next.suppliers = append(next.suppliers, sup)
		return []string{keySuppliers}, nil
	})
	if err != nil {
		return domain.Supplier{}, err
	}
	return sup, nil
}

// UpdateSupplier edits a supplier. Past transactions keep the name they
// were recorded with.
func (s *InventoryService) UpdateSupplier(ctx context.Context, sup domain.Supplier) error {
	if strings.TrimSpace(sup.Name) == "" {
		return fmt.Errorf("%w: name required", ErrInvalidSupplier)
	}
	return s.commit(ctx, false, func(next *state) ([]string, error) {
		i := slices.IndexFunc(next.suppliers, func(x domain.Supplier) bool { return x.ID == sup.ID })
		if i < 0 {
			return nil, fmt.Errorf("supplier %s: %w", sup.ID, ErrNotFound)
		}
		next.suppliers[i] = sup
		return []string{keySuppliers}, nil
	})
}

func (s *InventoryService) DeleteSupplier(ctx context.Context, id string) error {
	return s.commit(ctx, false, func(next *state) ([]string, error) {
		i := slices.IndexFunc(next.suppliers, func(x domain.Supplier) bool { return x.ID == id })
		if i < 0 {
			return nil, fmt.Errorf("supplier %s: %w", id, ErrNotFound)
		}
		next.suppliers = slices.Delete(next.suppliers, i, i+1)
		return []string{keySuppliers}, nil
	})
}

// Users

func validUser(u domain.UserAccount) error {
	if strings.TrimSpace(u.Username) == "" || u.Password == "" {
		return fmt.Errorf("%w: username and password required", ErrInvalidUser)
	}
	if !u.Role.Valid() {
		return fmt.Errorf("%w: role %q", ErrInvalidUser, u.Role)
	}
	return nil
}

func usernameTaken(users []domain.UserAccount, username, exceptID string) bool {
	return slices.ContainsFunc(users, func(u domain.UserAccount) bool {
		return u.ID != exceptID && strings.EqualFold(u.Username, username)
	})
}

func (s *InventoryService) AddUser(ctx context.Context, u domain.UserAccount) (domain.UserAccount, error) {
	if err := validUser(u); err != nil {
		return domain.UserAccount{}, err
	}
	if u.ID == "" {
		u.ID = s.opts.NewID()
	}
	if u.Room == "" {
		u.Room = domain.RoomWarehouse
	}
	err := s.commit(ctx, false, func(next *state) ([]string, error) {
		if usernameTaken(next.users, u.Username, "") {
			return nil, fmt.Errorf("%s: %w", u.Username, ErrDuplicateUsername)
		}
		next.users = append(next.users, u)
		return []string{keyUsers}, nil
	})
	if err != nil {
		return domain.UserAccount{}, err
	}
	return u, nil
}

func (s *InventoryService) UpdateUser(ctx context.Context, u domain.UserAccount) error {
	if err := validUser(u); err != nil {
		return err
	}
	return s.commit(ctx, false, func(next *state) ([]string, error) {
		i := slices.IndexFunc(next.users, func(x domain.UserAccount) bool { return x.ID == u.ID })
		if i < 0 {
			return nil, fmt.Errorf("user %s: %w", u.ID, ErrNotFound)
		}
		if usernameTaken(next.users, u.Username, u.ID) {
			return nil, fmt.Errorf("%s: %w", u.Username, ErrDuplicateUsername)
		}
		next.users[i] = u
		return []string{keyUsers}, nil
	})
}

func (s *InventoryService) DeleteUser(ctx context.Context, id string) error {
	return s.commit(ctx, false, func(next *state) ([]string, error) {
		i := slices.IndexFunc(next.users, func(x domain.UserAccount) bool { return x.ID == id })
		if i < 0 {
			return nil, fmt.Errorf("user %s: %w", id, ErrNotFound)
		}
		next.users = slices.Delete(next.users, i, i+1)
		return []string{keyUsers}, nil
	})
}

// Session

// Login matches the username case-insensitively and the password exactly.
// A successful login refreshes the catalog from the remote when an
// endpoint is configured.
func (s *InventoryService) Login(username, password string) (domain.UserAccount, error) {
	s.mu.RLock()
	i := slices.IndexFunc(s.st.users, func(u domain.UserAccount) bool {
		return strings.EqualFold(u.Username, strings.TrimSpace(username)) && u.Password == password
	})
	var user domain.UserAccount
	if i >= 0 {
		user = s.st.users[i]
	}
	endpoint := s.st.config.EndpointURL
	syncer := s.syncer
	s.mu.RUnlock()

	if i < 0 {
		return domain.UserAccount{}, ErrInvalidCredentials
	}
	if endpoint != "" && syncer != nil {
		syncer.SchedulePull()
	}
	return user, nil
}

// Logout drops the effect of any pull still in flight.
func (s *InventoryService) Logout() {
	s.mu.RLock()
	syncer := s.syncer
	s.mu.RUnlock()
	if syncer != nil {
		syncer.Invalidate()
	}
}

// Configuration

// SyncConfigUpdate names the configuration fields to change. Nil fields
// keep their current value.
type SyncConfigUpdate struct {
	EndpointURL *string
	ShareURL    *string
	AutoSync    *bool
}

// UpdateSyncConfig validates every field of u before writing any, then
// persists the changed keys in one write. A spreadsheet UI link is refused
// outright; blank or partial endpoints are stored and keep sync disabled.
func (s *InventoryService) UpdateSyncConfig(ctx context.Context, u SyncConfigUpdate) (domain.SyncConfig, error) {
	var endpoint, share string
	if u.EndpointURL != nil {
		endpoint = strings.TrimSpace(*u.EndpointURL)
		if ClassifyLink(endpoint) == domain.LinkSpreadsheetUI {
			s.logger.Warn("spreadsheet link rejected as sync endpoint", zap.String("url", endpoint))
			return s.SyncConfig(), ErrSpreadsheetLink
		}
	}
	if u.ShareURL != nil {
		share = strings.TrimSpace(*u.ShareURL)
		if err := CheckShareLink(share); err != nil {
			return s.SyncConfig(), err
		}
	}
	if u.EndpointURL == nil && u.ShareURL == nil && u.AutoSync == nil {
		return s.SyncConfig(), nil
	}

	var cfg domain.SyncConfig
	err := s.commit(ctx, false, func(next *state) ([]string, error) {
		var dirty []string
		if u.EndpointURL != nil {
			next.config.EndpointURL = endpoint
			dirty = append(dirty, keyEndpointURL)
		}
		if u.ShareURL != nil {
			next.config.ShareURL = share
			dirty = append(dirty, keyShareURL)
		}
		if u.AutoSync != nil {
			next.config.AutoSync = *u.AutoSync
			dirty = append(dirty, keyAutoSync)
		}
		cfg = next.config
		return dirty, nil
	})
	if err != nil {
		return s.SyncConfig(), err
	}
	return cfg, nil
}

// SetEndpointURL stores the remote endpoint and reports how it classifies.
func (s *InventoryService) SetEndpointURL(ctx context.Context, url string) (domain.LinkState, error) {
	linkState := ClassifyLink(strings.TrimSpace(url))
	_, err := s.UpdateSyncConfig(ctx, SyncConfigUpdate{EndpointURL: &url})
	return linkState, err
}

func (s *InventoryService) SetAutoSync(ctx context.Context, enabled bool) error {
	_, err := s.UpdateSyncConfig(ctx, SyncConfigUpdate{AutoSync: &enabled})
	return err
}

// Maintenance

// Restore replaces all four collections from a backup. A backup without
// users keeps the seed accounts so the system stays reachable.
func (s *InventoryService) Restore(ctx context.Context, snap domain.Snapshot) error {
	for _, it := range snap.Items {
		if it.Stock < 0 {
			return fmt.Errorf("%w: item %s has negative stock", ErrInvalidItem, it.ID)
		}
	}
	return s.commit(ctx, false, func(next *state) ([]string, error) {
		next.items = cloneOrEmpty(snap.Items)
		next.transactions = cloneOrEmpty(snap.Transactions)
		next.suppliers = cloneOrEmpty(snap.Suppliers)
		next.users = slices.Clone(snap.Users)
		if len(next.users) == 0 {
			next.users = domain.SeedUsers()
		}
		return []string{keyItems, keyTransactions, keySuppliers, keyUsers}, nil
	})
}

func cloneOrEmpty[T any](v []T) []T {
	if v == nil {
		return []T{}
	}
	return slices.Clone(v)
}

// Reset wipes every persisted key and returns to the seed dataset. Pulls
// still in flight are invalidated first so none can write the old remote
// catalog back under the cleared prefix.
func (s *InventoryService) Reset(ctx context.Context) error {
	s.mu.RLock()
	syncer := s.syncer
	s.mu.RUnlock()
	if syncer != nil {
		syncer.Invalidate()
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.store.clear(ctx); err != nil {
		return err
	}
	s.st = state{
		items:        domain.SeedItems(),
		transactions: []domain.Transaction{},
		suppliers:    domain.SeedSuppliers(),
		users:        domain.SeedUsers(),
	}
	s.logger.Info("local store reset")
	return nil
}
