package app

import (
	"context"
	"crypto/rand"
	"crypto/rsa"
	"crypto/x509"
	"encoding/pem"
	"sort"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/transfa/facepay-service/internal/domain"
	"github.com/transfa/facepay-service/internal/ledger"
	"github.com/transfa/facepay-service/internal/store"
	"github.com/transfa/facepay-service/pkg/envelope"
	"github.com/transfa/facepay-service/pkg/similarity"
)

// memRepo is an in-memory store.Repository. WithinTransaction snapshots state and
// restores it when fn fails, which is enough to observe rollback behavior.
type memRepo struct {
	accounts  map[uuid.UUID]domain.Account
	templates map[uuid.UUID]domain.FaceTemplate
	sessions  map[uuid.UUID]domain.PaymentSession
	txns      []domain.Transaction
	blocks    []ledger.Block

	insertBlockErr error
	ledgerLocks    int
}

func newMemRepo() *memRepo {
	return &memRepo{
		accounts:  map[uuid.UUID]domain.Account{},
		templates: map[uuid.UUID]domain.FaceTemplate{},
		sessions:  map[uuid.UUID]domain.PaymentSession{},
	}
}

type memSnapshot struct {
	accounts  map[uuid.UUID]domain.Account
	templates map[uuid.UUID]domain.FaceTemplate
	sessions  map[uuid.UUID]domain.PaymentSession
	txns      []domain.Transaction
	blocks    []ledger.Block
}

func (m *memRepo) snapshot() memSnapshot {
	s := memSnapshot{
		accounts:  map[uuid.UUID]domain.Account{},
		templates: map[uuid.UUID]domain.FaceTemplate{},
		sessions:  map[uuid.UUID]domain.PaymentSession{},
		txns:      append([]domain.Transaction(nil), m.txns...),
		blocks:    append([]ledger.Block(nil), m.blocks...),
	}
	for k, v := range m.accounts {
		s.accounts[k] = v
	}
	for k, v := range m.templates {
		s.templates[k] = v
	}
	for k, v := range m.sessions {
		s.sessions[k] = v
	}
	return s
}

func (m *memRepo) restore(s memSnapshot) {
	m.accounts, m.templates, m.sessions, m.txns, m.blocks = s.accounts, s.templates, s.sessions, s.txns, s.blocks
}

func (m *memRepo) WithinTransaction(ctx context.Context, fn func(tx store.Tx) error) error {
	snap := m.snapshot()
	if err := fn(m); err != nil {
		m.restore(snap)
		return err
	}
	return nil
}

func (m *memRepo) LockLedger(context.Context) error {
	m.ledgerLocks++
	return nil
}

func (m *memRepo) addAccount(a domain.Account) domain.Account {
	if a.ID == uuid.Nil {
		a.ID = uuid.New()
	}
	m.accounts[a.ID] = a
	return a
}

func (m *memRepo) CreateAccount(_ context.Context, a *domain.Account) error {
	for _, existing := range m.accounts {
		if existing.Mobile == a.Mobile {
			return store.ErrDuplicateMobile
		}
		if existing.AccountNumber == a.AccountNumber {
			return store.ErrDuplicateAccount
		}
	}
	a.CreatedAt = time.Now().UTC()
	m.accounts[a.ID] = *a
	return nil
}

func (m *memRepo) FindAccountByID(_ context.Context, id uuid.UUID) (*domain.Account, error) {
	a, ok := m.accounts[id]
	if !ok {
		return nil, store.ErrAccountNotFound
	}
	return &a, nil
}

func (m *memRepo) FindAccountByMobile(_ context.Context, mobile string) (*domain.Account, error) {
	for _, a := range m.accounts {
		if a.Mobile == mobile {
			return &a, nil
		}
	}
	return nil, store.ErrAccountNotFound
}

func (m *memRepo) FindAccountByNumber(_ context.Context, number string) (*domain.Account, error) {
	for _, a := range m.accounts {
		if a.AccountNumber == number {
			return &a, nil
		}
	}
	return nil, store.ErrAccountNotFound
}

func (m *memRepo) DebitAccount(_ context.Context, id uuid.UUID, amount int64) (int64, error) {
	a, ok := m.accounts[id]
	if !ok {
		return 0, store.ErrAccountNotFound
	}
	if a.Balance < amount {
		return 0, store.ErrInsufficientFunds
	}
	a.Balance -= amount
	m.accounts[id] = a
	return a.Balance, nil
}

func (m *memRepo) CreditAccount(_ context.Context, id uuid.UUID, amount int64) (int64, error) {
	a, ok := m.accounts[id]
	if !ok {
		return 0, store.ErrAccountNotFound
	}
	a.Balance += amount
	m.accounts[id] = a
	return a.Balance, nil
}

func (m *memRepo) FindFaceTemplateByAccountID(_ context.Context, accountID uuid.UUID) (*domain.FaceTemplate, error) {
	t, ok := m.templates[accountID]
	if !ok {
		return nil, store.ErrFaceTemplateNotFound
	}
	return &t, nil
}

func (m *memRepo) UpsertFaceTemplate(_ context.Context, tmpl *domain.FaceTemplate) error {
	if existing, ok := m.templates[tmpl.AccountID]; ok {
		tmpl.ID = existing.ID
		tmpl.CreatedAt = existing.CreatedAt
	} else if tmpl.ID == uuid.Nil {
		tmpl.ID = uuid.New()
	}
	m.templates[tmpl.AccountID] = *tmpl
	return nil
}

func (m *memRepo) SetFaceTemplateActive(_ context.Context, accountID uuid.UUID, active bool) error {
	t, ok := m.templates[accountID]
	if !ok {
		return store.ErrFaceTemplateNotFound
	}
	t.Active = active
	m.templates[accountID] = t
	return nil
}

func (m *memRepo) CreatePaymentSession(_ context.Context, s *domain.PaymentSession) error {
	m.sessions[s.ID] = *s
	return nil
}

func (m *memRepo) FindPaymentSession(_ context.Context, id uuid.UUID) (*domain.PaymentSession, error) {
	s, ok := m.sessions[id]
	if !ok {
		return nil, store.ErrSessionNotFound
	}
	return &s, nil
}

func (m *memRepo) TransitionPaymentSession(_ context.Context, id uuid.UUID, from domain.SessionStatus, u domain.SessionUpdate) (*domain.PaymentSession, error) {
	s, ok := m.sessions[id]
	if !ok {
		return nil, store.ErrSessionNotFound
	}
	if s.Status != from {
		return nil, store.ErrSessionStateConflict
	}
	if !u.At.IsZero() && s.Expired(u.At) {
		return nil, store.ErrSessionExpired
	}
	s.Status = u.Status
	if u.CustomerPhone != nil {
		s.CustomerPhone = u.CustomerPhone
	}
	if u.CustomerID != nil {
		s.CustomerID = u.CustomerID
	}
	if u.FaceScore != nil {
		s.FaceScore = u.FaceScore
	}
	if u.TransactionID != nil {
		s.TransactionID = u.TransactionID
	}
	m.sessions[id] = s
	return &s, nil
}

func (m *memRepo) CreateTransaction(_ context.Context, txn *domain.Transaction) error {
	m.txns = append(m.txns, *txn)
	return nil
}

func (m *memRepo) ListTransactionsByAccount(_ context.Context, accountID uuid.UUID, limit int) ([]domain.Transaction, error) {
	var out []domain.Transaction
	for _, t := range m.txns {
		if t.SenderID == accountID || t.ReceiverID == accountID {
			out = append(out, t)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (m *memRepo) LatestBlock(context.Context) (*ledger.Block, error) {
	if len(m.blocks) == 0 {
		return nil, nil
	}
	b := m.blocks[len(m.blocks)-1]
	return &b, nil
}

func (m *memRepo) InsertBlock(_ context.Context, b ledger.Block) error {
	if m.insertBlockErr != nil {
		return m.insertBlockErr
	}
	m.blocks = append(m.blocks, b)
	return nil
}

func (m *memRepo) ListBlocks(context.Context) ([]ledger.Block, error) {
	return append([]ledger.Block(nil), m.blocks...), nil
}

// --- collaborators ---

type stubEmbedder struct {
	vec []float32
	err error
}

func (s *stubEmbedder) GenerateEmbedding(context.Context, []byte) ([]float32, error) {
	if s.err != nil {
		return nil, s.err
	}
	return s.vec, nil
}

type sentNotification struct {
	recipient uuid.UUID
	msg       Notification
}

type recordingNotifier struct {
	sent []sentNotification
}

func (r *recordingNotifier) Notify(_ context.Context, recipient domain.Account, msg Notification) error {
	r.sent = append(r.sent, sentNotification{recipient: recipient.ID, msg: msg})
	return nil
}

type publishedEvent struct {
	routingKey string
	body       interface{}
}

type recordingPublisher struct {
	events []publishedEvent
}

func (r *recordingPublisher) Publish(_ context.Context, _ string, routingKey string, body interface{}) error {
	r.events = append(r.events, publishedEvent{routingKey: routingKey, body: body})
	return nil
}

func (r *recordingPublisher) PublishEvent(ctx context.Context, routingKey string, body interface{}) error {
	return r.Publish(ctx, "", routingKey, body)
}

func (r *recordingPublisher) Close() {}

type stubLimiter struct {
	decision VerificationDecision
	err      error
	checks   int
	failures int
	resets   int
}

func (s *stubLimiter) Check(context.Context, uuid.UUID, uuid.UUID) (VerificationDecision, error) {
	s.checks++
	return s.decision, s.err
}

func (s *stubLimiter) RecordFailure(context.Context, uuid.UUID, uuid.UUID) (VerificationDecision, error) {
	s.failures++
	return s.decision, s.err
}

func (s *stubLimiter) Reset(context.Context, uuid.UUID, uuid.UUID) error {
	s.resets++
	return s.err
}

type testClock struct {
	t time.Time
}

func (c *testClock) Now() time.Time { return c.t }

func (c *testClock) Advance(d time.Duration) { c.t = c.t.Add(d) }

var (
	pinCipherOnce sync.Once
	pinCipher     *envelope.Asymmetric
)

func testPINCipher(t *testing.T) *envelope.Asymmetric {
	t.Helper()
	pinCipherOnce.Do(func() {
		key, err := rsa.GenerateKey(rand.Reader, 2048)
		if err != nil {
			panic(err)
		}
		privDER, _ := x509.MarshalPKCS8PrivateKey(key)
		pubDER, _ := x509.MarshalPKIXPublicKey(&key.PublicKey)
		env, err := envelope.NewAsymmetric(
			pem.EncodeToMemory(&pem.Block{Type: "PRIVATE KEY", Bytes: privDER}),
			pem.EncodeToMemory(&pem.Block{Type: "PUBLIC KEY", Bytes: pubDER}),
		)
		if err != nil {
			panic(err)
		}
		pinCipher = env
	})
	return pinCipher
}

func testTemplateCipher(t *testing.T) *envelope.Symmetric {
	t.Helper()
	env, err := envelope.NewSymmetric([]byte("0123456789abcdef0123456789abcdef"))
	if err != nil {
		t.Fatalf("NewSymmetric returned error: %v", err)
	}
	return env
}

// fixture wires a Service over memRepo with one vendor and one enrolled customer.
type fixture struct {
	svc       *Service
	repo      *memRepo
	embedder  *stubEmbedder
	notifier  *recordingNotifier
	events    *recordingPublisher
	limiter   *stubLimiter
	clock     *testClock
	vendor    domain.Account
	customer  domain.Account
	storedVec []float32
}

const (
	fixturePIN         = "482913"
	fixtureCustomerTel = "+15550001111"
)

func newFixture(t *testing.T) *fixture {
	t.Helper()
	repo := newMemRepo()
	clock := &testClock{t: time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC)}
	f := &fixture{
		repo:      repo,
		embedder:  &stubEmbedder{},
		notifier:  &recordingNotifier{},
		events:    &recordingPublisher{},
		limiter:   &stubLimiter{decision: VerificationDecision{Allowed: true}},
		clock:     clock,
		storedVec: []float32{0.9, 0.1, 0.3, 0.2},
	}

	f.vendor = repo.addAccount(domain.Account{
		AccountNumber: "VEND0001", AccountType: domain.AccountTypeVendor, Name: "Corner Shop",
		Mobile: "+15550009999", Email: "shop@example.com",
	})
	f.customer = repo.addAccount(domain.Account{
		AccountNumber: "CUST0001", AccountType: domain.AccountTypeCustomer, Name: "Ada",
		Mobile: fixtureCustomerTel, Email: "ada@example.com", Balance: 100000,
	})

	templates := testTemplateCipher(t)
	pins := testPINCipher(t)
	encVec, err := templates.EncryptEmbedding(f.storedVec)
	if err != nil {
		t.Fatalf("EncryptEmbedding returned error: %v", err)
	}
	encPIN, err := pins.EncryptPIN(fixturePIN)
	if err != nil {
		t.Fatalf("EncryptPIN returned error: %v", err)
	}
	repo.templates[f.customer.ID] = domain.FaceTemplate{
		ID: uuid.New(), AccountID: f.customer.ID, EncryptedEmbedding: encVec, EncryptedPIN: encPIN,
		FacePayLimit: 50000, Active: true,
	}

	f.svc = NewService(Dependencies{
		Repo:      repo,
		Embedder:  f.embedder,
		Templates: templates,
		PINs:      pins,
		Scorer:    similarity.NewScorer(0.6),
		Notifier:  f.notifier,
		Events:    f.events,
		Limiter:   f.limiter,
		Tokens:    NewTokenIssuer("test-secret", time.Hour),
		Clock:     clock.Now,
	}, Settings{
		SessionTTL:          15 * time.Minute,
		DefaultFacePayLimit: 500000,
		FrontendURL:         "https://bank.example.com",
	})
	return f
}

func (f *fixture) balance(id uuid.UUID) int64 {
	return f.repo.accounts[id].Balance
}

// advanceTo drives a new session up to the requested state.
func (f *fixture) advanceTo(t *testing.T, amount int64, target domain.SessionStatus) *domain.PaymentSession {
	t.Helper()
	ctx := context.Background()
	session, err := f.svc.InitiateSession(ctx, f.vendor.ID, amount)
	if err != nil {
		t.Fatalf("InitiateSession returned error: %v", err)
	}
	if target == domain.SessionInitiated {
		return session
	}
	if session, err = f.svc.ConfirmAmount(ctx, f.vendor.ID, session.ID, true); err != nil {
		t.Fatalf("ConfirmAmount returned error: %v", err)
	}
	if target == domain.SessionAmountConfirmed {
		return session
	}
	phone, err := f.svc.VerifyPhone(ctx, f.vendor.ID, session.ID, fixtureCustomerTel)
	if err != nil {
		t.Fatalf("VerifyPhone returned error: %v", err)
	}
	if target == domain.SessionPhoneVerified {
		return phone.Session
	}
	f.embedder.vec = f.storedVec
	face, err := f.svc.VerifyFace(ctx, f.vendor.ID, session.ID, []byte("live"))
	if err != nil {
		t.Fatalf("VerifyFace returned error: %v", err)
	}
	return face.Session
}
