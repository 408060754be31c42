package repositories

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/v2/bson"
	"go.mongodb.org/mongo-driver/v2/mongo"
	"go.mongodb.org/mongo-driver/v2/mongo/options"

	"ballouchi/internal/models"
)

const (
	usersCollection      = "users"
	identitiesCollection = "identities"
	merchantsCollection  = "merchants"
)

// ConnectMongo opens a client and pings it so a bad URI fails at startup.
func ConnectMongo(ctx context.Context, uri string) (*mongo.Client, error) {
	client, err := mongo.Connect(options.Client().ApplyURI(uri))
	if err != nil {
		return nil, fmt.Errorf("mongo connect: %w", err)
	}
	if err := client.Ping(ctx, nil); err != nil {
		_ = client.Disconnect(context.Background())
		return nil, fmt.Errorf("mongo ping: %w", err)
	}
	return client, nil
}

// EnsureMongoIndexes creates the unique and lookup indexes. Users are keyed
// by _id (the email) and need none.
func EnsureMongoIndexes(ctx context.Context, db *mongo.Database) error {
	_, err := db.Collection(identitiesCollection).Indexes().CreateOne(ctx, mongo.IndexModel{
		Keys:    bson.D{{Key: "email", Value: 1}},
		Options: options.Index().SetUnique(true),
	})
	if err != nil {
		return fmt.Errorf("identities index: %w", err)
	}
	_, err = db.Collection(merchantsCollection).Indexes().CreateOne(ctx, mongo.IndexModel{
		Keys: bson.D{{Key: "email", Value: 1}, {Key: "created_at", Value: 1}},
	})
	if err != nil {
		return fmt.Errorf("merchants index: %w", err)
	}
	return nil
}

type mongoUserRepository struct {
	coll *mongo.Collection
}

func NewMongoUserRepository(db *mongo.Database) UserRepository {
	return &mongoUserRepository{coll: db.Collection(usersCollection)}
}

func (r *mongoUserRepository) Create(ctx context.Context, user *models.User) error {
	if _, err := r.coll.InsertOne(ctx, user); err != nil {
		if mongo.IsDuplicateKeyError(err) {
			return ErrDuplicate
		}
		return fmt.Errorf("users insert: %w", err)
	}
	return nil
}

func (r *mongoUserRepository) GetByEmail(ctx context.Context, email string) (*models.User, error) {
	var u models.User
	if err := r.coll.FindOne(ctx, bson.M{"_id": email}).Decode(&u); err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("users find: %w", err)
	}
	return &u, nil
}

func (r *mongoUserRepository) ReplaceVerificationCode(ctx context.Context, email string, prevCode *string, code string, expiresAt time.Time) error {
	// a nil filter value also matches a missing field
	var prev any
	if prevCode != nil {
		prev = *prevCode
	}
	filter := bson.M{"_id": email, "is_verified": false, "verification_code": prev}
	update := bson.M{"$set": bson.M{
		"verification_code":            code,
		"verification_code_expires_at": expiresAt,
		"updated_at":                   time.Now().UTC(),
	}}
	return r.updateOne(ctx, "users replace verification code", filter, update, ErrStale)
}

func (r *mongoUserRepository) ClearVerificationCode(ctx context.Context, email, prevCode string) error {
	filter := bson.M{"_id": email, "is_verified": false, "verification_code": prevCode}
	update := bson.M{
		"$unset": bson.M{"verification_code": "", "verification_code_expires_at": ""},
		"$set":   bson.M{"updated_at": time.Now().UTC()},
	}
	return r.updateOne(ctx, "users clear verification code", filter, update, ErrStale)
}

func (r *mongoUserRepository) MarkVerified(ctx context.Context, email, code string, at time.Time) error {
	filter := bson.M{"_id": email, "is_verified": false, "verification_code": code}
	update := bson.M{
		"$unset": bson.M{"verification_code": "", "verification_code_expires_at": ""},
		"$set":   bson.M{"is_verified": true, "verified_at": at, "updated_at": at},
	}
	return r.updateOne(ctx, "users mark verified", filter, update, ErrStale)
}

func (r *mongoUserRepository) UpdateAccountType(ctx context.Context, email string, accountType models.AccountType) error {
	update := bson.M{"$set": bson.M{"account_type": accountType, "updated_at": time.Now().UTC()}}
	return r.updateOne(ctx, "users update account type", bson.M{"_id": email}, update, ErrNotFound)
}

func (r *mongoUserRepository) UpdateLocation(ctx context.Context, email string, loc models.Location) error {
	update := bson.M{"$set": bson.M{"location": loc, "updated_at": time.Now().UTC()}}
	return r.updateOne(ctx, "users update location", bson.M{"_id": email}, update, ErrNotFound)
}

func (r *mongoUserRepository) Delete(ctx context.Context, email string) error {
	res, err := r.coll.DeleteOne(ctx, bson.M{"_id": email})
	if err != nil {
		return fmt.Errorf("users delete: %w", err)
	}
	if res.DeletedCount == 0 {
		return ErrNotFound
	}
	return nil
}

func (r *mongoUserRepository) updateOne(ctx context.Context, op string, filter, update bson.M, none error) error {
	res, err := r.coll.UpdateOne(ctx, filter, update)
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	if res.MatchedCount == 0 {
		return none
	}
	return nil
}

type mongoIdentityRepository struct {
	coll *mongo.Collection
}

func NewMongoIdentityRepository(db *mongo.Database) IdentityRepository {
	return &mongoIdentityRepository{coll: db.Collection(identitiesCollection)}
}

func (r *mongoIdentityRepository) Create(ctx context.Context, identity *models.Identity) error {
	if _, err := r.coll.InsertOne(ctx, identity); err != nil {
		if mongo.IsDuplicateKeyError(err) {
			return ErrDuplicate
		}
		return fmt.Errorf("identities insert: %w", err)
	}
	return nil
}

func (r *mongoIdentityRepository) GetByEmail(ctx context.Context, email string) (*models.Identity, error) {
	var id models.Identity
	if err := r.coll.FindOne(ctx, bson.M{"email": email}).Decode(&id); err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("identities find: %w", err)
	}
	return &id, nil
}

func (r *mongoIdentityRepository) Delete(ctx context.Context, uid string) error {
	res, err := r.coll.DeleteOne(ctx, bson.M{"_id": uid})
	if err != nil {
		return fmt.Errorf("identities delete: %w", err)
	}
	if res.DeletedCount == 0 {
		return ErrNotFound
	}
	return nil
}

type mongoMerchantRepository struct {
	coll *mongo.Collection
}

func NewMongoMerchantRepository(db *mongo.Database) MerchantRepository {
	return &mongoMerchantRepository{coll: db.Collection(merchantsCollection)}
}

func (r *mongoMerchantRepository) Create(ctx context.Context, m *models.Merchant) error {
	if _, err := r.coll.InsertOne(ctx, m); err != nil {
		if mongo.IsDuplicateKeyError(err) {
			return ErrDuplicate
		}
		return fmt.Errorf("merchants insert: %w", err)
	}
	return nil
}

func (r *mongoMerchantRepository) ListByEmail(ctx context.Context, email string) ([]*models.Merchant, error) {
	cur, err := r.coll.Find(ctx, bson.M{"email": email}, options.Find().SetSort(bson.D{{Key: "created_at", Value: 1}}))
	if err != nil {
		return nil, fmt.Errorf("merchants find: %w", err)
	}
	var res []*models.Merchant
	if err := cur.All(ctx, &res); err != nil {
		return nil, fmt.Errorf("merchants decode: %w", err)
	}
	return res, nil
}

func (r *mongoMerchantRepository) DeleteByEmail(ctx context.Context, email string) error {
	if _, err := r.coll.DeleteMany(ctx, bson.M{"email": email}); err != nil {
		return fmt.Errorf("merchants delete: %w", err)
	}
	return nil
}
