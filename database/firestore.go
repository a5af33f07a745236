package database

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"tripsplit-backend/ledger"
	"tripsplit-backend/models"
	"tripsplit-backend/money"
	"tripsplit-backend/services"

	"cloud.google.com/go/firestore"
	firebase "firebase.google.com/go/v4"
	"github.com/shopspring/decimal"
	"google.golang.org/api/iterator"
	"google.golang.org/api/option"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

// ErrAmbiguousSplit marks an expense document without explicit shares.
var ErrAmbiguousSplit = errors.New("expense document has no explicit split amounts")

const (
	expensesCollection = "expenses"
	usersCollection    = "users"
)

// NewFirebaseApp initializes Firebase. An empty credPath uses the
// application default credentials.
func NewFirebaseApp(ctx context.Context, credPath, projectID string) (*firebase.App, error) {
	var opts []option.ClientOption
	if credPath != "" {
		opts = append(opts, option.WithCredentialsFile(credPath))
	}
	app, err := firebase.NewApp(ctx, &firebase.Config{ProjectID: projectID}, opts...)
	if err != nil {
		return nil, fmt.Errorf("initializing firebase: %w", err)
	}
	return app, nil
}

// Document layout shared with the web client. Amounts are stored as plain
// numbers there, so they are rounded back to minor units on read.
type expenseDoc struct {
	Item      string     `firestore:"item"`
	Amount    float64    `firestore:"amount"`
	Currency  string     `firestore:"currency"`
	PaidBy    string     `firestore:"paidBy"`
	SplitWith []string   `firestore:"splitWith"`
	Splits    []splitDoc `firestore:"splits"`
	CreatedAt time.Time  `firestore:"createdAt"`
}

type splitDoc struct {
	UserID string  `firestore:"userId"`
	Amount float64 `firestore:"amount"`
}

func toDoc(e models.Expense) expenseDoc {
	d := expenseDoc{
		Item:      e.Label,
		Amount:    e.Total.Amount.InexactFloat64(),
		Currency:  string(e.Total.Currency),
		PaidBy:    e.Payer,
		SplitWith: e.Participants(),
		Splits:    make([]splitDoc, len(e.Splits)),
		CreatedAt: e.CreatedAt,
	}
	for i, s := range e.Splits {
		d.Splits[i] = splitDoc{UserID: s.Participant, Amount: s.Share.Amount.InexactFloat64()}
	}
	return d
}

func fromDoc(id string, d expenseDoc) (models.Expense, error) {
	code := d.Currency
	if code == "" {
		code = string(money.USD)
	}
	cur, err := money.ParseCurrency(code)
	if err != nil {
		return models.Expense{}, err
	}
	e := models.Expense{
		ID:        id,
		Label:     d.Item,
		Total:     money.New(decimal.NewFromFloat(d.Amount), cur),
		Payer:     d.PaidBy,
		CreatedAt: d.CreatedAt.UTC(),
	}

	if len(d.Splits) == 0 && len(d.SplitWith) > 0 {
		// older documents only list participants, and clients disagree on
		// whether the payer is counted among them
		return models.Expense{}, ErrAmbiguousSplit
	}
	for _, s := range d.Splits {
		e.Splits = append(e.Splits, models.SplitEntry{
			Participant: s.UserID,
			Share:       money.New(decimal.NewFromFloat(s.Amount), cur),
		})
	}
	return e, nil
}

// FirestoreStore keeps expenses in the "expenses" collection.
type FirestoreStore struct {
	client *firestore.Client
}

func NewFirestoreStore(client *firestore.Client) *FirestoreStore {
	return &FirestoreStore{client: client}
}

func (s *FirestoreStore) col() *firestore.CollectionRef {
	return s.client.Collection(expensesCollection)
}

func (s *FirestoreStore) Get(ctx context.Context, id string) (models.Expense, error) {
	snap, err := s.col().Doc(id).Get(ctx)
	if status.Code(err) == codes.NotFound {
		return models.Expense{}, fmt.Errorf("%w: %s", ledger.ErrNotFound, id)
	}
	if err != nil {
		return models.Expense{}, err
	}
	return decode(snap)
}

func (s *FirestoreStore) Create(ctx context.Context, e models.Expense) error {
	_, err := s.col().Doc(e.ID).Create(ctx, toDoc(e))
	if status.Code(err) == codes.AlreadyExists {
		return fmt.Errorf("%w: %s", ledger.ErrDuplicateID, e.ID)
	}
	return err
}

func (s *FirestoreStore) Replace(ctx context.Context, e models.Expense) error {
	ref := s.col().Doc(e.ID)
	return s.client.RunTransaction(ctx, func(ctx context.Context, tx *firestore.Transaction) error {
		if _, err := tx.Get(ref); err != nil {
			if status.Code(err) == codes.NotFound {
				return fmt.Errorf("%w: %s", ledger.ErrNotFound, e.ID)
			}
			return err
		}
		return tx.Set(ref, toDoc(e))
	})
}

func (s *FirestoreStore) Delete(ctx context.Context, id string) error {
	_, err := s.col().Doc(id).Delete(ctx, firestore.Exists)
	if status.Code(err) == codes.NotFound {
		return fmt.Errorf("%w: %s", ledger.ErrNotFound, id)
	}
	return err
}

func (s *FirestoreStore) List(ctx context.Context) ([]models.Expense, error) {
	it := s.col().OrderBy("createdAt", firestore.Desc).Documents(ctx)
	defer it.Stop()

	var out []models.Expense
	for {
		snap, err := it.Next()
		if errors.Is(err, iterator.Done) {
			break
		}
		if err != nil {
			return nil, err
		}
		e, err := decode(snap)
		if err != nil {
			slog.Warn("skipping unreadable expense document", "expense_id", snap.Ref.ID, "error", err)
			continue
		}
		out = append(out, e)
	}
	return out, nil
}

func decode(snap *firestore.DocumentSnapshot) (models.Expense, error) {
	var d expenseDoc
	if err := snap.DataTo(&d); err != nil {
		return models.Expense{}, err
	}
	return fromDoc(snap.Ref.ID, d)
}

// FirestoreFeed streams changes to the expenses collection, including
// writes made by other clients.
type FirestoreFeed struct {
	client *firestore.Client
}

func NewFirestoreFeed(client *firestore.Client) *FirestoreFeed {
	return &FirestoreFeed{client: client}
}

func (f *FirestoreFeed) Watch(ctx context.Context, apply func(services.Change)) error {
	it := f.client.Collection(expensesCollection).Snapshots(ctx)
	defer it.Stop()
	slog.Info("watching firestore change feed", "collection", expensesCollection)

	for {
		snap, err := it.Next()
		if err != nil {
			if ctx.Err() != nil || status.Code(err) == codes.Canceled {
				return ctx.Err()
			}
			return fmt.Errorf("firestore snapshot: %w", err)
		}
		for _, ch := range snap.Changes {
			id := ch.Doc.Ref.ID
			if ch.Kind == firestore.DocumentRemoved {
				apply(services.Change{ID: id})
				continue
			}
			e, err := decode(ch.Doc)
			if err != nil {
				slog.Warn("ignoring unreadable expense change", "expense_id", id, "error", err)
				continue
			}
			apply(services.Change{ID: id, Expense: &e})
		}
	}
}

// FirestoreDirectory reads profiles from the "users" collection, keyed by uid.
type FirestoreDirectory struct {
	client *firestore.Client
}

func NewFirestoreDirectory(client *firestore.Client) *FirestoreDirectory {
	return &FirestoreDirectory{client: client}
}

func (d *FirestoreDirectory) Lookup(ctx context.Context, userID string) (models.Profile, error) {
	snap, err := d.client.Collection(usersCollection).Doc(userID).Get(ctx)
	if status.Code(err) == codes.NotFound {
		return models.Profile{}, services.ErrUserNotFound
	}
	if err != nil {
		return models.Profile{}, err
	}
	var p models.Profile
	if err := snap.DataTo(&p); err != nil {
		return models.Profile{}, err
	}
	if p.ID == "" {
		p.ID = userID
	}
	return p, nil
}
