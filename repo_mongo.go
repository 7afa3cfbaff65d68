package accounts

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

const (
	mongoNameIndex  = "uniq_name"
	mongoEmailIndex = "uniq_email"
)

// dupKeyIndex pulls the index name out of an E11000 message. The duplicated
// value comes after "dup key", so it cannot be mistaken for the index.
var dupKeyIndex = regexp.MustCompile(`index: (\S+) dup key`)

type mongoAccountRepository struct {
	collection *mongo.Collection
}

// dbAccount keeps the field names of the users collection. Absent pictures
// and biographies are stored as null.
type dbAccount struct {
	ID         ID        `bson:"_id"`
	Name       string    `bson:"name"`
	Email      string    `bson:"email"`
	Password   string    `bson:"password"`
	ProfilePic *string   `bson:"profilePic"`
	Biography  *string   `bson:"biography"`
	CreatedAt  time.Time `bson:"createdAt"`
	UpdatedAt  time.Time `bson:"updatedAt"`
}

func NewMongoAccountRepository(c *mongo.Collection) Repository {
	return &mongoAccountRepository{collection: c}
}

// EnsureIndexes creates the unique indexes that back name and email
// uniqueness. It is safe to call on every start.
func EnsureIndexes(ctx context.Context, c *mongo.Collection) error {
	_, err := c.Indexes().CreateMany(ctx, []mongo.IndexModel{
		{Keys: bson.D{{Key: "name", Value: 1}}, Options: options.Index().SetName(mongoNameIndex).SetUnique(true)},
		{Keys: bson.D{{Key: "email", Value: 1}}, Options: options.Index().SetName(mongoEmailIndex).SetUnique(true)},
	})
	if err != nil {
		return fmt.Errorf("error creating indexes: %w", err)
	}
	return nil
}

func (m *mongoAccountRepository) FindByName(ctx context.Context, name string) (*Account, error) {
	return m.findAccountBy(ctx, "name", name)
}

func (m *mongoAccountRepository) FindByEmail(ctx context.Context, email string) (*Account, error) {
	return m.findAccountBy(ctx, "email", email)
}

func (m *mongoAccountRepository) findAccountBy(ctx context.Context, key string, val string) (*Account, error) {
	var a dbAccount
	err := m.collection.FindOne(ctx, bson.M{key: val}).Decode(&a)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}

	return accountFromDB(a), nil
}

func (m *mongoAccountRepository) Store(ctx context.Context, acc *Account) error {
	_, err := m.collection.InsertOne(ctx, dbAccountFromAccount(acc))
	return mongoWriteError(err)
}

func (m *mongoAccountRepository) UpdateByName(ctx context.Context, name string, acc *Account) error {
	res, err := m.collection.ReplaceOne(ctx, bson.M{"_id": acc.ID, "name": name}, dbAccountFromAccount(acc))
	if err != nil {
		return mongoWriteError(err)
	}
	if res.MatchedCount == 0 {
		return ErrNotFound
	}
	return nil
}

func mongoWriteError(err error) error {
	if err == nil || !mongo.IsDuplicateKeyError(err) {
		return err
	}
	if m := dupKeyIndex.FindStringSubmatch(err.Error()); m != nil && m[1] == mongoEmailIndex {
		return &ConstraintError{Field: FieldEmail, Err: err}
	}
	return &ConstraintError{Field: FieldName, Err: err}
}

func dbAccountFromAccount(a *Account) dbAccount {
	return dbAccount{
		ID:         a.ID,
		Name:       a.Name,
		Email:      a.Email,
		Password:   a.PasswordHash,
		ProfilePic: nullable(a.ProfilePic),
		Biography:  nullable(a.Biography),
		CreatedAt:  a.CreatedAt,
		UpdatedAt:  a.UpdatedAt,
	}
}

func accountFromDB(a dbAccount) *Account {
	acc := &Account{
		ID:           a.ID,
		Name:         a.Name,
		Email:        a.Email,
		PasswordHash: a.Password,
		CreatedAt:    a.CreatedAt,
		UpdatedAt:    a.UpdatedAt,
	}
	if a.ProfilePic != nil {
		acc.ProfilePic = *a.ProfilePic
	}
	if a.Biography != nil {
		acc.Biography = *a.Biography
	}
	return acc
}

func nullable(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}
