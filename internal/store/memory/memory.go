package memory

import (
	"context"
	"os"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"
	"golang.org/x/crypto/bcrypt"

	"github.com/fnsdeividy/base-arch-sub000/internal/domain"
	"github.com/fnsdeividy/base-arch-sub000/internal/store"
)

type rwLocker interface {
	Lock()
	Unlock()
	RLock()
	RUnlock()
}

type nopLocker struct{}

func (nopLocker) Lock()    {}
func (nopLocker) Unlock()  {}
func (nopLocker) RLock()   {}
func (nopLocker) RUnlock() {}

type state struct {
	products        map[string]domain.Product
	materials       map[string]domain.Material
	batches         map[string]domain.MaterialBatch
	reservations    map[string][]domain.BatchReservation
	bom             map[string]domain.ProductBOM
	conversions     map[string]domain.UnitConversion
	orders          map[string]domain.ProductionOrder
	consumptions    []domain.ProductionConsumption
	finishedGoods   []domain.FinishedGoodsInventory
	productCosts    map[string]domain.ProductCostCache
	settings        *domain.ProductionSettings
	auditLogs       []domain.AuditLog
	usersByUsername map[string]domain.UserAccount
}

func newState() *state {
	return &state{
		products:        make(map[string]domain.Product),
		materials:       make(map[string]domain.Material),
		batches:         make(map[string]domain.MaterialBatch),
		reservations:    make(map[string][]domain.BatchReservation),
		bom:             make(map[string]domain.ProductBOM),
		conversions:     make(map[string]domain.UnitConversion),
		orders:          make(map[string]domain.ProductionOrder),
		consumptions:    make([]domain.ProductionConsumption, 0, 64),
		finishedGoods:   make([]domain.FinishedGoodsInventory, 0, 16),
		productCosts:    make(map[string]domain.ProductCostCache),
		auditLogs:       make([]domain.AuditLog, 0, 128),
		usersByUsername: make(map[string]domain.UserAccount),
	}
}

// clone copies every table. Entity values are copied by value; pointer
// fields are only ever replaced, never written through.
func (st *state) clone() *state {
	dup := &state{
		products:        cloneMap(st.products),
		materials:       cloneMap(st.materials),
		batches:         cloneMap(st.batches),
		reservations:    make(map[string][]domain.BatchReservation, len(st.reservations)),
		bom:             cloneMap(st.bom),
		conversions:     cloneMap(st.conversions),
		orders:          cloneMap(st.orders),
		consumptions:    slices.Clone(st.consumptions),
		finishedGoods:   slices.Clone(st.finishedGoods),
		productCosts:    cloneMap(st.productCosts),
		auditLogs:       slices.Clone(st.auditLogs),
		usersByUsername: cloneMap(st.usersByUsername),
	}
	for orderID, rows := range st.reservations {
		dup.reservations[orderID] = slices.Clone(rows)
	}
	if st.settings != nil {
		settings := *st.settings
		dup.settings = &settings
	}
	return dup
}

func cloneMap[K comparable, V any](src map[K]V) map[K]V {
	dst := make(map[K]V, len(src))
	for k, v := range src {
		dst[k] = v
	}
	return dst
}

// Store keeps everything in process memory. Writes inside InTx go to a
// private copy that replaces the live state only when the callback succeeds.
type Store struct {
	mu   rwLocker
	data *state
}

func New() *Store {
	return &Store{mu: &sync.RWMutex{}, data: newState()}
}

// seedUsers builds the initial in-memory user accounts for dev/demo mode.
// Credentials are read from SEED_ADMIN_PASSWORD and SEED_OPERATOR_PASSWORD.
// If unset, dev defaults are used with a warning. These accounts never reach
// PostgreSQL deployments.
func seedUsers() map[string]domain.UserAccount {
	adminPwd := envOr("SEED_ADMIN_PASSWORD", "admin123")
	operatorPwd := envOr("SEED_OPERATOR_PASSWORD", "operator123")
	if os.Getenv("SEED_ADMIN_PASSWORD") == "" || os.Getenv("SEED_OPERATOR_PASSWORD") == "" {
		logrus.WithField("module", "memory-store").Warn("using default dev credentials; set SEED_ADMIN_PASSWORD and SEED_OPERATOR_PASSWORD to override")
	}

	now := time.Now().UTC()
	users := map[string]domain.UserAccount{}
	for _, u := range []struct {
		username string
		password string
		role     string
	}{
		{"admin", adminPwd, domain.RoleAdmin},
		{"operator", operatorPwd, domain.RoleOperator},
	} {
		hash, err := bcrypt.GenerateFromPassword([]byte(u.password), bcrypt.DefaultCost)
		if err != nil {
			logrus.WithField("module", "memory-store").Fatalf("failed to hash seed password for %s: %v", u.username, err)
		}
		users[u.username] = domain.UserAccount{
			Username:  u.username,
			Password:  string(hash),
			Role:      u.role,
			Active:    true,
			CreatedAt: now,
		}
	}
	return users
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func NewSeeded() *Store {
	s := New()
	s.data.usersByUsername = seedUsers()
	return s
}

func (s *Store) InTx(ctx context.Context, fn func(q store.Querier) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := ctx.Err(); err != nil {
		return err
	}
	tx := &Store{mu: nopLocker{}, data: s.data.clone()}
	if err := fn(tx); err != nil {
		return err
	}
	s.data = tx.data
	return nil
}

// Products

func (s *Store) CreateProduct(_ context.Context, product domain.Product) (*domain.Product, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if product.ID == "" || product.SKU == "" || product.Name == "" {
		return nil, store.ErrInvalidInput
	}
	for _, existing := range s.data.products {
		if strings.EqualFold(existing.SKU, product.SKU) {
			return nil, store.ErrConflict
		}
	}
	stampCreated(&product.CreatedAt, &product.UpdatedAt)
	s.data.products[product.ID] = product
	created := product
	return &created, nil
}

func (s *Store) GetProduct(_ context.Context, id string) (*domain.Product, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	product, exists := s.data.products[id]
	if !exists {
		return nil, store.ErrNotFound
	}
	return &product, nil
}

func (s *Store) ListProducts(_ context.Context) ([]domain.Product, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	products := make([]domain.Product, 0, len(s.data.products))
	for _, p := range s.data.products {
		products = append(products, p)
	}
	slices.SortFunc(products, func(a, b domain.Product) int {
		return cmpString(a.Name, b.Name)
	})
	return products, nil
}

func (s *Store) UpdateProduct(_ context.Context, product domain.Product) (*domain.Product, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	existing, exists := s.data.products[product.ID]
	if !exists {
		return nil, store.ErrNotFound
	}
	for _, other := range s.data.products {
		if other.ID != product.ID && strings.EqualFold(other.SKU, product.SKU) {
			return nil, store.ErrConflict
		}
	}
	product.CreatedAt = existing.CreatedAt
	product.UpdatedAt = time.Now().UTC()
	s.data.products[product.ID] = product
	saved := product
	return &saved, nil
}

// Materials

func (s *Store) CreateMaterial(_ context.Context, material domain.Material) (*domain.Material, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if material.ID == "" || material.Name == "" || material.BaseUnit == "" {
		return nil, store.ErrInvalidInput
	}
	if s.materialClashes(material) {
		return nil, store.ErrConflict
	}
	stampCreated(&material.CreatedAt, &material.UpdatedAt)
	s.data.materials[material.ID] = material
	created := material
	return &created, nil
}

func (s *Store) materialClashes(material domain.Material) bool {
	for _, other := range s.data.materials {
		if other.ID == material.ID {
			continue
		}
		if strings.EqualFold(other.Name, material.Name) {
			return true
		}
		if material.SKU != "" && strings.EqualFold(other.SKU, material.SKU) {
			return true
		}
	}
	return false
}

func (s *Store) GetMaterial(_ context.Context, id string) (*domain.Material, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	material, exists := s.data.materials[id]
	if !exists {
		return nil, store.ErrNotFound
	}
	return &material, nil
}

func (s *Store) ListMaterials(_ context.Context, filter store.MaterialFilter) ([]domain.Material, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	search := strings.ToLower(strings.TrimSpace(filter.Search))
	materials := make([]domain.Material, 0, len(s.data.materials))
	for _, m := range s.data.materials {
		if search != "" &&
			!strings.Contains(strings.ToLower(m.Name), search) &&
			!strings.Contains(strings.ToLower(m.SKU), search) {
			continue
		}
		materials = append(materials, m)
	}
	slices.SortFunc(materials, func(a, b domain.Material) int {
		return cmpString(a.Name, b.Name)
	})
	return materials, nil
}

func (s *Store) UpdateMaterial(_ context.Context, material domain.Material) (*domain.Material, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	existing, exists := s.data.materials[material.ID]
	if !exists {
		return nil, store.ErrNotFound
	}
	if s.materialClashes(material) {
		return nil, store.ErrConflict
	}
	material.CreatedAt = existing.CreatedAt
	material.UpdatedAt = time.Now().UTC()
	s.data.materials[material.ID] = material
	saved := material
	return &saved, nil
}

func (s *Store) DeleteMaterial(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.data.materials[id]; !exists {
		return store.ErrNotFound
	}
	delete(s.data.materials, id)
	for convID, conv := range s.data.conversions {
		if conv.MaterialID == id {
			delete(s.data.conversions, convID)
		}
	}
	return nil
}

func (s *Store) CountBOMByMaterial(_ context.Context, materialID string) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	count := 0
	for _, entry := range s.data.bom {
		if entry.MaterialID == materialID {
			count++
		}
	}
	return count, nil
}

func (s *Store) CountActiveBatches(_ context.Context, materialID string) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	count := 0
	for _, batch := range s.data.batches {
		if batch.MaterialID == materialID && (batch.Status == domain.BatchAvailable || batch.Status == domain.BatchReserved) {
			count++
		}
	}
	return count, nil
}

// Batches

func (s *Store) CreateBatch(_ context.Context, batch domain.MaterialBatch) (*domain.MaterialBatch, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if batch.ID == "" || batch.MaterialID == "" || !batch.Quantity.IsPositive() {
		return nil, store.ErrInvalidInput
	}
	if _, exists := s.data.materials[batch.MaterialID]; !exists {
		return nil, store.ErrNotFound
	}
	if _, exists := s.data.batches[batch.ID]; exists {
		return nil, store.ErrConflict
	}
	if batch.Status == "" {
		batch.Status = domain.BatchAvailable
	}
	stampCreated(&batch.CreatedAt, &batch.UpdatedAt)
	if batch.ReceivedAt.IsZero() {
		batch.ReceivedAt = batch.CreatedAt
	}
	s.data.batches[batch.ID] = batch
	created := batch
	return &created, nil
}

func (s *Store) GetBatch(_ context.Context, id string) (*domain.MaterialBatch, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	batch, exists := s.data.batches[id]
	if !exists {
		return nil, store.ErrNotFound
	}
	return &batch, nil
}

func (s *Store) ListBatches(_ context.Context, filter store.BatchFilter) ([]domain.MaterialBatch, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	batches := make([]domain.MaterialBatch, 0, len(s.data.batches))
	for _, b := range s.data.batches {
		if filter.MaterialID != "" && b.MaterialID != filter.MaterialID {
			continue
		}
		if filter.Status != "" && b.Status != filter.Status {
			continue
		}
		batches = append(batches, b)
	}
	slices.SortFunc(batches, compareBatchFIFO)
	return batches, nil
}

func (s *Store) ListAvailableBatches(_ context.Context, materialID string, _ bool) ([]domain.MaterialBatch, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	batches := make([]domain.MaterialBatch, 0, 8)
	for _, b := range s.data.batches {
		if b.MaterialID == materialID && b.Status == domain.BatchAvailable {
			batches = append(batches, b)
		}
	}
	slices.SortFunc(batches, compareBatchFIFO)
	return batches, nil
}

func (s *Store) DecrementBatch(_ context.Context, id string, qty decimal.Decimal, at time.Time) (*domain.MaterialBatch, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	batch, exists := s.data.batches[id]
	if !exists {
		return nil, store.ErrNotFound
	}
	if !qty.IsPositive() {
		return nil, store.ErrInvalidInput
	}
	if batch.Status != domain.BatchAvailable || batch.Quantity.Sub(batch.ReservedQty).LessThan(qty) {
		return nil, store.ErrConflict
	}
	batch.Quantity = batch.Quantity.Sub(qty)
	if batch.Quantity.IsZero() {
		batch.Status = domain.BatchConsumed
	}
	batch.UpdatedAt = at
	s.data.batches[id] = batch
	saved := batch
	return &saved, nil
}

func (s *Store) ReserveBatchQty(_ context.Context, id string, qty decimal.Decimal, at time.Time) (*domain.MaterialBatch, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	batch, exists := s.data.batches[id]
	if !exists {
		return nil, store.ErrNotFound
	}
	if !qty.IsPositive() {
		return nil, store.ErrInvalidInput
	}
	if batch.Status != domain.BatchAvailable || batch.Quantity.Sub(batch.ReservedQty).LessThan(qty) {
		return nil, store.ErrConflict
	}
	batch.ReservedQty = batch.ReservedQty.Add(qty)
	if batch.ReservedQty.Equal(batch.Quantity) {
		batch.Status = domain.BatchReserved
	}
	batch.UpdatedAt = at
	s.data.batches[id] = batch
	saved := batch
	return &saved, nil
}

func (s *Store) ReleaseBatchQty(_ context.Context, id string, qty decimal.Decimal, at time.Time) (*domain.MaterialBatch, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	batch, exists := s.data.batches[id]
	if !exists {
		return nil, store.ErrNotFound
	}
	if !qty.IsPositive() {
		return nil, store.ErrInvalidInput
	}
	if batch.ReservedQty.LessThan(qty) {
		return nil, store.ErrConflict
	}
	batch.ReservedQty = batch.ReservedQty.Sub(qty)
	if batch.Status == domain.BatchReserved && batch.Quantity.IsPositive() {
		batch.Status = domain.BatchAvailable
	}
	batch.UpdatedAt = at
	s.data.batches[id] = batch
	saved := batch
	return &saved, nil
}

func (s *Store) DeleteBatch(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.data.batches[id]; !exists {
		return store.ErrNotFound
	}
	delete(s.data.batches, id)
	return nil
}

func (s *Store) CountConsumptionsByBatch(_ context.Context, batchID string) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	count := 0
	for _, c := range s.data.consumptions {
		if c.BatchID == batchID {
			count++
		}
	}
	return count, nil
}

// Reservations

func (s *Store) CreateReservation(_ context.Context, reservation domain.BatchReservation) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if reservation.ID == "" || reservation.ProductionOrderID == "" || reservation.BatchID == "" {
		return store.ErrInvalidInput
	}
	if reservation.CreatedAt.IsZero() {
		reservation.CreatedAt = time.Now().UTC()
	}
	s.data.reservations[reservation.ProductionOrderID] = append(s.data.reservations[reservation.ProductionOrderID], reservation)
	return nil
}

func (s *Store) ListReservationsByOrder(_ context.Context, orderID string) ([]domain.BatchReservation, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return slices.Clone(s.data.reservations[orderID]), nil
}

func (s *Store) DeleteReservationsByOrder(_ context.Context, orderID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	delete(s.data.reservations, orderID)
	return nil
}

// Bill of materials

func (s *Store) CreateBOM(_ context.Context, entry domain.ProductBOM) (*domain.ProductBOM, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if entry.ID == "" || entry.ProductID == "" || entry.MaterialID == "" {
		return nil, store.ErrInvalidInput
	}
	if _, exists := s.data.products[entry.ProductID]; !exists {
		return nil, store.ErrNotFound
	}
	if _, exists := s.data.materials[entry.MaterialID]; !exists {
		return nil, store.ErrNotFound
	}
	for _, other := range s.data.bom {
		if other.ProductID == entry.ProductID && other.MaterialID == entry.MaterialID {
			return nil, store.ErrConflict
		}
	}
	stampCreated(&entry.CreatedAt, &entry.UpdatedAt)
	s.data.bom[entry.ID] = entry
	created := entry
	return &created, nil
}

func (s *Store) GetBOM(_ context.Context, id string) (*domain.ProductBOM, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	entry, exists := s.data.bom[id]
	if !exists {
		return nil, store.ErrNotFound
	}
	return &entry, nil
}

func (s *Store) ListBOM(_ context.Context, filter store.BOMFilter) ([]domain.ProductBOM, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	entries := make([]domain.ProductBOM, 0, len(s.data.bom))
	for _, e := range s.data.bom {
		if filter.ProductID != "" && e.ProductID != filter.ProductID {
			continue
		}
		if filter.MaterialID != "" && e.MaterialID != filter.MaterialID {
			continue
		}
		entries = append(entries, e)
	}
	slices.SortFunc(entries, func(a, b domain.ProductBOM) int {
		if c := a.CreatedAt.Compare(b.CreatedAt); c != 0 {
			return c
		}
		return cmpString(a.ID, b.ID)
	})
	return entries, nil
}

func (s *Store) UpdateBOM(_ context.Context, entry domain.ProductBOM) (*domain.ProductBOM, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	existing, exists := s.data.bom[entry.ID]
	if !exists {
		return nil, store.ErrNotFound
	}
	entry.ProductID = existing.ProductID
	entry.MaterialID = existing.MaterialID
	entry.CreatedAt = existing.CreatedAt
	entry.UpdatedAt = time.Now().UTC()
	s.data.bom[entry.ID] = entry
	saved := entry
	return &saved, nil
}

func (s *Store) DeleteBOM(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.data.bom[id]; !exists {
		return store.ErrNotFound
	}
	delete(s.data.bom, id)
	return nil
}

// Unit conversions

func (s *Store) CreateUnitConversion(_ context.Context, conv domain.UnitConversion) (*domain.UnitConversion, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if conv.ID == "" || conv.FromUnit == "" || conv.ToUnit == "" || !conv.Factor.IsPositive() {
		return nil, store.ErrInvalidInput
	}
	if conv.MaterialID != "" {
		if _, exists := s.data.materials[conv.MaterialID]; !exists {
			return nil, store.ErrNotFound
		}
	}
	for _, other := range s.data.conversions {
		if other.MaterialID == conv.MaterialID && other.FromUnit == conv.FromUnit && other.ToUnit == conv.ToUnit {
			return nil, store.ErrConflict
		}
	}
	if conv.CreatedAt.IsZero() {
		conv.CreatedAt = time.Now().UTC()
	}
	s.data.conversions[conv.ID] = conv
	created := conv
	return &created, nil
}

func (s *Store) ListUnitConversions(_ context.Context, filter store.UnitConversionFilter) ([]domain.UnitConversion, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]domain.UnitConversion, 0, len(s.data.conversions))
	for _, c := range s.data.conversions {
		switch {
		case filter.MaterialID != "":
			if c.MaterialID != filter.MaterialID {
				continue
			}
		case filter.GlobalOnly:
			if c.MaterialID != "" {
				continue
			}
		}
		out = append(out, c)
	}
	slices.SortFunc(out, func(a, b domain.UnitConversion) int {
		if a.MaterialID != b.MaterialID {
			return cmpString(a.MaterialID, b.MaterialID)
		}
		if a.FromUnit != b.FromUnit {
			return cmpString(string(a.FromUnit), string(b.FromUnit))
		}
		return cmpString(string(a.ToUnit), string(b.ToUnit))
	})
	return out, nil
}

func (s *Store) FindUnitConversion(_ context.Context, materialID string, from, to domain.Unit) (*domain.UnitConversion, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	for _, c := range s.data.conversions {
		if c.MaterialID == materialID && c.FromUnit == from && c.ToUnit == to {
			found := c
			return &found, nil
		}
	}
	return nil, store.ErrNotFound
}

func (s *Store) DeleteUnitConversion(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.data.conversions[id]; !exists {
		return store.ErrNotFound
	}
	delete(s.data.conversions, id)
	return nil
}

// Production orders

func (s *Store) CreateProductionOrder(_ context.Context, order domain.ProductionOrder) (*domain.ProductionOrder, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if order.ID == "" || order.ProductID == "" {
		return nil, store.ErrInvalidInput
	}
	if _, exists := s.data.products[order.ProductID]; !exists {
		return nil, store.ErrNotFound
	}
	for _, other := range s.data.orders {
		if other.ProductID == order.ProductID && other.BatchCode == order.BatchCode {
			return nil, store.ErrConflict
		}
	}
	stampCreated(&order.CreatedAt, &order.UpdatedAt)
	s.data.orders[order.ID] = order
	created := order
	return &created, nil
}

func (s *Store) GetProductionOrder(_ context.Context, id string) (*domain.ProductionOrder, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	order, exists := s.data.orders[id]
	if !exists {
		return nil, store.ErrNotFound
	}
	return &order, nil
}

// LockProductionOrder is a plain read here; InTx already serializes writers.
func (s *Store) LockProductionOrder(ctx context.Context, id string) (*domain.ProductionOrder, error) {
	return s.GetProductionOrder(ctx, id)
}

func (s *Store) ListProductionOrders(_ context.Context, filter store.OrderFilter) ([]domain.ProductionOrder, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	limit := filter.Limit
	if limit <= 0 {
		limit = 100
	}
	orders := make([]domain.ProductionOrder, 0, len(s.data.orders))
	for _, o := range s.data.orders {
		if filter.ProductID != "" && o.ProductID != filter.ProductID {
			continue
		}
		if filter.Status != "" && o.Status != filter.Status {
			continue
		}
		orders = append(orders, o)
	}
	slices.SortFunc(orders, func(a, b domain.ProductionOrder) int {
		if c := b.CreatedAt.Compare(a.CreatedAt); c != 0 {
			return c
		}
		return cmpString(b.ID, a.ID)
	})
	if len(orders) > limit {
		orders = orders[:limit]
	}
	return orders, nil
}

func (s *Store) UpdateProductionOrder(_ context.Context, order domain.ProductionOrder) (*domain.ProductionOrder, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	existing, exists := s.data.orders[order.ID]
	if !exists {
		return nil, store.ErrNotFound
	}
	order.CreatedAt = existing.CreatedAt
	order.UpdatedAt = time.Now().UTC()
	s.data.orders[order.ID] = order
	saved := order
	return &saved, nil
}

func (s *Store) CountOrdersForProductOn(_ context.Context, productID string, from time.Time, to time.Time) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	count := 0
	for _, o := range s.data.orders {
		if o.ProductID != productID {
			continue
		}
		if o.CreatedAt.Before(from) || !o.CreatedAt.Before(to) {
			continue
		}
		count++
	}
	return count, nil
}

// Consumptions and finished goods

func (s *Store) CreateConsumption(_ context.Context, consumption domain.ProductionConsumption) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if consumption.ID == "" || consumption.ProductionOrderID == "" || consumption.MaterialID == "" {
		return store.ErrInvalidInput
	}
	if consumption.CreatedAt.IsZero() {
		consumption.CreatedAt = time.Now().UTC()
	}
	s.data.consumptions = append(s.data.consumptions, consumption)
	return nil
}

func (s *Store) ListConsumptionsByOrder(_ context.Context, orderID string) ([]domain.ProductionConsumption, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]domain.ProductionConsumption, 0, 8)
	for _, c := range s.data.consumptions {
		if c.ProductionOrderID == orderID {
			out = append(out, c)
		}
	}
	return out, nil
}

func (s *Store) CreateFinishedGoods(_ context.Context, entry domain.FinishedGoodsInventory) (*domain.FinishedGoodsInventory, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if entry.ID == "" || entry.ProductID == "" || entry.ProductionOrderID == "" {
		return nil, store.ErrInvalidInput
	}
	if entry.CreatedAt.IsZero() {
		entry.CreatedAt = time.Now().UTC()
	}
	s.data.finishedGoods = append(s.data.finishedGoods, entry)
	created := entry
	return &created, nil
}

func (s *Store) ListFinishedGoods(_ context.Context, filter store.FinishedGoodsFilter) ([]domain.FinishedGoodsInventory, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]domain.FinishedGoodsInventory, 0, len(s.data.finishedGoods))
	for i := len(s.data.finishedGoods) - 1; i >= 0; i-- {
		entry := s.data.finishedGoods[i]
		if filter.ProductID != "" && entry.ProductID != filter.ProductID {
			continue
		}
		if filter.ProductionOrderID != "" && entry.ProductionOrderID != filter.ProductionOrderID {
			continue
		}
		out = append(out, entry)
	}
	return out, nil
}

// Cost cache and settings

func (s *Store) UpsertProductCost(_ context.Context, entry domain.ProductCostCache) error {
	if entry.ProductID == "" || entry.UnitCost.IsNegative() {
		return store.ErrInvalidInput
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.data.products[entry.ProductID]; !exists {
		return store.ErrNotFound
	}
	s.data.productCosts[entry.ProductID] = entry
	return nil
}

func (s *Store) GetProductCost(_ context.Context, productID string) (*domain.ProductCostCache, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	entry, exists := s.data.productCosts[productID]
	if !exists {
		return nil, store.ErrNotFound
	}
	return &entry, nil
}

func (s *Store) GetSettings(_ context.Context) (*domain.ProductionSettings, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.data.settings == nil {
		return nil, store.ErrNotFound
	}
	settings := *s.data.settings
	return &settings, nil
}

func (s *Store) SaveSettings(_ context.Context, settings domain.ProductionSettings) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !settings.CostingMethod.Valid() {
		return store.ErrInvalidInput
	}
	if settings.UpdatedAt.IsZero() {
		settings.UpdatedAt = time.Now().UTC()
	}
	s.data.settings = &settings
	return nil
}

// Audit and users

func (s *Store) CreateAuditLog(_ context.Context, entry domain.AuditLog) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if entry.ID == "" || entry.Action == "" {
		return store.ErrInvalidInput
	}
	if entry.CreatedAt.IsZero() {
		entry.CreatedAt = time.Now().UTC()
	}
	s.data.auditLogs = append(s.data.auditLogs, entry)
	return nil
}

func (s *Store) ListAuditLogs(_ context.Context, from time.Time, to time.Time, limit int) ([]domain.AuditLog, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if limit < 1 {
		limit = 100
	}
	out := make([]domain.AuditLog, 0, limit)
	for i := len(s.data.auditLogs) - 1; i >= 0 && len(out) < limit; i-- {
		entry := s.data.auditLogs[i]
		if !from.IsZero() && entry.CreatedAt.Before(from) {
			continue
		}
		if !to.IsZero() && !entry.CreatedAt.Before(to) {
			continue
		}
		out = append(out, entry)
	}
	return out, nil
}

func (s *Store) CreateUser(_ context.Context, user domain.UserAccount) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	username := strings.ToLower(strings.TrimSpace(user.Username))
	if username == "" || strings.TrimSpace(user.Password) == "" {
		return store.ErrInvalidInput
	}
	if _, exists := s.data.usersByUsername[username]; exists {
		return store.ErrConflict
	}
	user.Username = username
	if user.Role == "" {
		user.Role = domain.RoleOperator
	}
	if user.CreatedAt.IsZero() {
		user.CreatedAt = time.Now().UTC()
	}
	user.Active = true
	s.data.usersByUsername[user.Username] = user
	return nil
}

func (s *Store) ListUsers(_ context.Context) ([]domain.UserAccount, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	users := make([]domain.UserAccount, 0, len(s.data.usersByUsername))
	for _, user := range s.data.usersByUsername {
		users = append(users, user)
	}
	slices.SortFunc(users, func(a, b domain.UserAccount) int {
		return cmpString(a.Username, b.Username)
	})
	return users, nil
}

func (s *Store) UpdateUserPassword(_ context.Context, username string, password string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	username = strings.ToLower(strings.TrimSpace(username))
	if username == "" || strings.TrimSpace(password) == "" {
		return store.ErrInvalidInput
	}
	user, exists := s.data.usersByUsername[username]
	if !exists {
		return store.ErrNotFound
	}
	user.Password = password
	s.data.usersByUsername[username] = user
	return nil
}

func stampCreated(createdAt *time.Time, updatedAt *time.Time) {
	if createdAt.IsZero() {
		*createdAt = time.Now().UTC()
	}
	if updatedAt.IsZero() {
		*updatedAt = *createdAt
	}
}

func compareBatchFIFO(a domain.MaterialBatch, b domain.MaterialBatch) int {
	if c := a.ReceivedAt.Compare(b.ReceivedAt); c != 0 {
		return c
	}
	return cmpString(a.ID, b.ID)
}

func cmpString(a string, b string) int {
	if a == b {
		return 0
	}
	if a < b {
		return -1
	}
	return 1
}
