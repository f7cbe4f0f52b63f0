package pipeline

import (
	"context"
	"errors"
	"regexp"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

// Repository owns entry persistence. Every mutating method is a conditional
// single-document update: the filter encodes the precondition (current stage,
// pending status, expected paid amount) so the check-and-set is atomic with
// respect to other sessions. A filter miss surfaces as ErrNotFound and the
// service layer reclassifies it by re-reading the entry.
type Repository interface {
	Insert(ctx context.Context, entry Entry) error
	GetByID(ctx context.Context, id string) (Entry, error)
	GetByOfferID(ctx context.Context, offerID string) (Entry, error)
	List(ctx context.Context, filter ListFilter, limit, offset int64) ([]Entry, error)
	Count(ctx context.Context, filter ListFilter) (int64, error)

	AdvanceStage(ctx context.Context, id, from, to string, offer *Offer, alloc *Allocation, now time.Time) (Entry, error)
	Terminate(ctx context.Context, id, from, to string, now time.Time) (Entry, error)

	SetOfferExpiry(ctx context.Context, id string, expiry, now time.Time) (Entry, error)
	AcceptOffer(ctx context.Context, offerID string, alloc *Allocation, now time.Time) (Entry, error)
	DeclineOffer(ctx context.Context, offerID string, now time.Time) (Entry, error)
	MarkOfferLetterGenerated(ctx context.Context, id string, now time.Time) (Entry, error)

	ApproveAllocation(ctx context.Context, id, approver string, now time.Time) (Entry, error)
	RejectAllocation(ctx context.Context, id string, now time.Time) (Entry, error)
	RecordPayment(ctx context.Context, id string, prevPaid, newPaid int64, progress string, now time.Time) (Entry, error)
	Reallocate(ctx context.Context, id, newPlot string, now time.Time) (Entry, error)
	MarkContractGenerated(ctx context.Context, id string, now time.Time) (Entry, error)
}

type MongoRepository struct {
	col *mongo.Collection
}

func NewMongoRepository(col *mongo.Collection) *MongoRepository {
	return &MongoRepository{col: col}
}

func (r *MongoRepository) Insert(ctx context.Context, entry Entry) error {
	_, err := r.col.InsertOne(ctx, entry)
	if mongo.IsDuplicateKeyError(err) {
		return ErrDuplicateUnit
	}
	return err
}

func (r *MongoRepository) GetByID(ctx context.Context, id string) (Entry, error) {
	var entry Entry
	if err := r.col.FindOne(ctx, bson.M{"_id": id}).Decode(&entry); err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return Entry{}, ErrNotFound
		}
		return Entry{}, err
	}
	return entry, nil
}

func (r *MongoRepository) GetByOfferID(ctx context.Context, offerID string) (Entry, error) {
	var entry Entry
	if err := r.col.FindOne(ctx, bson.M{"offer.id": offerID}).Decode(&entry); err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return Entry{}, ErrNotFound
		}
		return Entry{}, err
	}
	return entry, nil
}

func (r *MongoRepository) List(ctx context.Context, filter ListFilter, limit, offset int64) ([]Entry, error) {
	opts := options.Find().
		SetSort(bson.D{{Key: "updated_at", Value: -1}}).
		SetLimit(limit).
		SetSkip(offset)

	cursor, err := r.col.Find(ctx, r.filterToBSON(filter), opts)
	if err != nil {
		return nil, err
	}
	defer cursor.Close(ctx)

	items := make([]Entry, 0)
	for cursor.Next(ctx) {
		var entry Entry
		if err := cursor.Decode(&entry); err != nil {
			return nil, err
		}
		items = append(items, entry)
	}
	if err := cursor.Err(); err != nil {
		return nil, err
	}
	return items, nil
}

func (r *MongoRepository) Count(ctx context.Context, filter ListFilter) (int64, error) {
	return r.col.CountDocuments(ctx, r.filterToBSON(filter))
}

func (r *MongoRepository) AdvanceStage(ctx context.Context, id, from, to string, offer *Offer, alloc *Allocation, now time.Time) (Entry, error) {
	set := bson.M{
		"stage":      to,
		"updated_at": now,
	}
	if offer != nil {
		set["offer"] = offer
	}
	if alloc != nil {
		set["allocation"] = alloc
	}
	if to == StagePaid {
		set["active"] = false
	}
	filter := bson.M{"_id": id, "stage": from, "active": true}
	return r.findOneAndUpdate(ctx, filter, bson.M{"$set": set})
}

func (r *MongoRepository) Terminate(ctx context.Context, id, from, to string, now time.Time) (Entry, error) {
	filter := bson.M{"_id": id, "stage": from, "active": true}
	update := bson.M{"$set": bson.M{
		"stage":      to,
		"active":     false,
		"updated_at": now,
	}}
	return r.findOneAndUpdate(ctx, filter, update)
}

func (r *MongoRepository) SetOfferExpiry(ctx context.Context, id string, expiry, now time.Time) (Entry, error) {
	filter := bson.M{"_id": id, "stage": StageOffer, "offer.status": OfferPending}
	update := bson.M{"$set": bson.M{
		"offer.expiry_date": expiry,
		"updated_at":        now,
	}}
	return r.findOneAndUpdate(ctx, filter, update)
}

func (r *MongoRepository) AcceptOffer(ctx context.Context, offerID string, alloc *Allocation, now time.Time) (Entry, error) {
	filter := bson.M{"offer.id": offerID, "stage": StageOffer, "offer.status": OfferPending}
	update := bson.M{"$set": bson.M{
		"offer.status":      OfferAccepted,
		"offer.resolved_at": now,
		"stage":             StageAllocation,
		"allocation":        alloc,
		"updated_at":        now,
	}}
	return r.findOneAndUpdate(ctx, filter, update)
}

func (r *MongoRepository) DeclineOffer(ctx context.Context, offerID string, now time.Time) (Entry, error) {
	filter := bson.M{"offer.id": offerID, "stage": StageOffer, "offer.status": OfferPending}
	update := bson.M{"$set": bson.M{
		"offer.status":      OfferDeclined,
		"offer.resolved_at": now,
		"stage":             StageRejected,
		"active":            false,
		"updated_at":        now,
	}}
	return r.findOneAndUpdate(ctx, filter, update)
}

func (r *MongoRepository) MarkOfferLetterGenerated(ctx context.Context, id string, now time.Time) (Entry, error) {
	filter := bson.M{"_id": id, "offer": bson.M{"$ne": nil}}
	update := bson.M{"$set": bson.M{
		"offer.letter_generated": true,
		"updated_at":             now,
	}}
	return r.findOneAndUpdate(ctx, filter, update)
}

func (r *MongoRepository) ApproveAllocation(ctx context.Context, id, approver string, now time.Time) (Entry, error) {
	filter := bson.M{"_id": id, "stage": StageAllocation, "allocation.status": AllocationPending}
	update := bson.M{"$set": bson.M{
		"allocation.status":        AllocationApproved,
		"allocation.approved_by":   approver,
		"allocation.approved_date": now,
		"updated_at":               now,
	}}
	return r.findOneAndUpdate(ctx, filter, update)
}

func (r *MongoRepository) RejectAllocation(ctx context.Context, id string, now time.Time) (Entry, error) {
	// The unit stays reserved on rejection; only revoke or offer decline
	// releases it.
	filter := bson.M{"_id": id, "stage": StageAllocation, "allocation.status": AllocationPending}
	update := bson.M{"$set": bson.M{
		"allocation.status": AllocationRejected,
		"updated_at":        now,
	}}
	return r.findOneAndUpdate(ctx, filter, update)
}

func (r *MongoRepository) RecordPayment(ctx context.Context, id string, prevPaid, newPaid int64, progress string, now time.Time) (Entry, error) {
	// Compare-and-swap on the paid accumulator so two concurrently recorded
	// payments cannot both apply against the same base amount.
	filter := bson.M{
		"_id":                    id,
		"stage":                  StageAllocation,
		"allocation.status":      AllocationApproved,
		"allocation.amount_paid": prevPaid,
	}
	update := bson.M{"$set": bson.M{
		"allocation.amount_paid": newPaid,
		"allocation.progress":    progress,
		"updated_at":             now,
	}}
	return r.findOneAndUpdate(ctx, filter, update)
}

func (r *MongoRepository) Reallocate(ctx context.Context, id, newPlot string, now time.Time) (Entry, error) {
	filter := bson.M{"_id": id, "stage": StageAllocation, "active": true}
	update := bson.M{
		"$set": bson.M{
			"plot_number":       newPlot,
			"allocation.status": AllocationPending,
			"updated_at":        now,
		},
		"$unset": bson.M{
			"allocation.approved_by":   "",
			"allocation.approved_date": "",
		},
	}
	entry, err := r.findOneAndUpdate(ctx, filter, update)
	if mongo.IsDuplicateKeyError(err) {
		return Entry{}, ErrUnitConflict
	}
	return entry, err
}

func (r *MongoRepository) MarkContractGenerated(ctx context.Context, id string, now time.Time) (Entry, error) {
	filter := bson.M{"_id": id, "allocation": bson.M{"$ne": nil}}
	update := bson.M{"$set": bson.M{
		"allocation.contract_generated": true,
		"updated_at":                    now,
	}}
	return r.findOneAndUpdate(ctx, filter, update)
}

func (r *MongoRepository) findOneAndUpdate(ctx context.Context, filter, update bson.M) (Entry, error) {
	opts := options.FindOneAndUpdate().SetReturnDocument(options.After)
	var entry Entry
	if err := r.col.FindOneAndUpdate(ctx, filter, update, opts).Decode(&entry); err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return Entry{}, ErrNotFound
		}
		return Entry{}, err
	}
	return entry, nil
}

func (r *MongoRepository) filterToBSON(filter ListFilter) bson.M {
	query := bson.M{}
	if filter.Terminal {
		query["stage"] = bson.M{"$in": []string{StagePaid, StageRejected, StageRevoked}}
	} else if filter.Stage != "" {
		query["stage"] = filter.Stage
	}
	if q := filter.Query; q != "" {
		re := primitive.Regex{Pattern: regexp.QuoteMeta(q), Options: "i"}
		query["$or"] = []bson.M{
			{"client_name": re},
			{"plot_number": re},
			{"marketer_name": re},
		}
	}
	return query
}
