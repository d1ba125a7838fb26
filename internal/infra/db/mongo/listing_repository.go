package mongo

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	domainlistings "zedflip/internal/domain/listings"
	"zedflip/internal/domain/shared/money"
	domainuser "zedflip/internal/domain/user"
)

type ListingRepository struct {
	col *mongo.Collection
}

func NewListingRepository(db *mongo.Database) *ListingRepository {
	return &ListingRepository{col: db.Collection(listingsCollection)}
}

func ensureListingIndexes(ctx context.Context, db *mongo.Database) error {
	_, err := db.Collection(listingsCollection).Indexes().CreateMany(ctx, []mongo.IndexModel{
		{Keys: bson.D{{Key: "status", Value: 1}, {Key: "created_at", Value: -1}}},
		{Keys: bson.D{{Key: "status", Value: 1}, {Key: "category", Value: 1}, {Key: "city", Value: 1}}},
		{Keys: bson.D{{Key: "seller_id", Value: 1}, {Key: "created_at", Value: -1}}},
		{Keys: bson.D{{Key: "status", Value: 1}, {Key: "is_featured", Value: 1}}},
	})
	if err != nil {
		return fmt.Errorf("mongo: listing indexes: %w", err)
	}
	return nil
}

func (r *ListingRepository) ByID(ctx context.Context, id domainlistings.ListingID) (*domainlistings.Listing, error) {
	var doc listingDocument
	if err := r.col.FindOne(ctx, bson.M{"_id": string(id)}).Decode(&doc); err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, domainlistings.ErrListingNotFound
		}
		return nil, fmt.Errorf("mongo: listing by id: %w", err)
	}
	return doc.toAggregate(), nil
}

// Save replaces the listing document. The view counter is left to
// IncrementViews so concurrent views are never lost to an edit.
func (r *ListingRepository) Save(ctx context.Context, listing *domainlistings.Listing) error {
	if listing == nil || listing.ID == "" {
		return domainlistings.ErrIDRequired
	}
	doc := newListingDocument(listing)
	set := bson.M{}
	raw, err := bson.Marshal(doc)
	if err != nil {
		return fmt.Errorf("mongo: encode listing: %w", err)
	}
	if err := bson.Unmarshal(raw, &set); err != nil {
		return fmt.Errorf("mongo: encode listing: %w", err)
	}
	delete(set, "_id")
	delete(set, "views")
	update := bson.M{"$set": set, "$setOnInsert": bson.M{"views": doc.Views}}
	if _, err := r.col.UpdateByID(ctx, doc.ID, update, options.Update().SetUpsert(true)); err != nil {
		return fmt.Errorf("mongo: save listing: %w", err)
	}
	return nil
}

func (r *ListingRepository) IncrementViews(ctx context.Context, id domainlistings.ListingID) error {
	res, err := r.col.UpdateByID(ctx, string(id), bson.M{"$inc": bson.M{"views": 1}})
	if err != nil {
		return fmt.Errorf("mongo: increment views: %w", err)
	}
	if res.MatchedCount == 0 {
		return domainlistings.ErrListingNotFound
	}
	return nil
}

func (r *ListingRepository) Search(ctx context.Context, params domainlistings.SearchParams) (domainlistings.SearchResult, error) {
	opts := params.Normalized()
	filter := searchFilter(opts)
	total, err := r.col.CountDocuments(ctx, filter)
	if err != nil {
		return domainlistings.SearchResult{}, fmt.Errorf("mongo: count listings: %w", err)
	}
	find := options.Find().
		SetSort(searchSort(opts.Sort)).
		SetSkip(int64(opts.Offset)).
		SetLimit(int64(opts.Limit))
	cur, err := r.col.Find(ctx, filter, find)
	if err != nil {
		return domainlistings.SearchResult{}, fmt.Errorf("mongo: search listings: %w", err)
	}
	var docs []listingDocument
	if err := cur.All(ctx, &docs); err != nil {
		return domainlistings.SearchResult{}, fmt.Errorf("mongo: decode listings: %w", err)
	}
	items := make([]*domainlistings.Listing, 0, len(docs))
	for _, doc := range docs {
		items = append(items, doc.toAggregate())
	}
	return domainlistings.SearchResult{Items: items, Total: int(total)}, nil
}

func (r *ListingRepository) CountByStatus(ctx context.Context) (map[domainlistings.Status]int, error) {
	pipeline := mongo.Pipeline{
		{{Key: "$group", Value: bson.D{{Key: "_id", Value: "$status"}, {Key: "count", Value: bson.D{{Key: "$sum", Value: 1}}}}}},
	}
	cur, err := r.col.Aggregate(ctx, pipeline)
	if err != nil {
		return nil, fmt.Errorf("mongo: count listings by status: %w", err)
	}
	var rows []struct {
		Status string `bson:"_id"`
		Count  int    `bson:"count"`
	}
	if err := cur.All(ctx, &rows); err != nil {
		return nil, fmt.Errorf("mongo: decode listing counts: %w", err)
	}
	out := make(map[domainlistings.Status]int, len(rows))
	for _, row := range rows {
		out[domainlistings.Status(row.Status)] = row.Count
	}
	return out, nil
}

// searchFilter mirrors SearchParams.Matches as a query document.
func searchFilter(p domainlistings.SearchParams) bson.M {
	statuses := make([]string, 0, len(p.Statuses))
	for _, s := range p.Statuses {
		statuses = append(statuses, string(s))
	}
	filter := bson.M{"status": bson.M{"$in": statuses}}
	if p.Seller != "" {
		filter["seller_id"] = string(p.Seller)
	}
	if p.Category != "" {
		filter["category"] = p.Category
	}
	if p.City != "" {
		filter["city"] = bson.M{"$regex": "^" + regexp.QuoteMeta(p.City) + "$", "$options": "i"}
	}
	if p.Condition != "" {
		filter["condition"] = string(p.Condition)
	}
	price := bson.M{}
	if p.PriceMinNgwee > 0 {
		price["$gte"] = p.PriceMinNgwee
	}
	if p.PriceMaxNgwee > 0 {
		price["$lte"] = p.PriceMaxNgwee
	}
	if len(price) > 0 {
		filter["price_ngwee"] = price
	}
	if p.FeaturedOnly {
		filter["is_featured"] = true
	}
	if p.Query != "" {
		pattern := bson.M{"$regex": regexp.QuoteMeta(p.Query), "$options": "i"}
		filter["$or"] = bson.A{
			bson.M{"title": pattern},
			bson.M{"description": pattern},
			bson.M{"tags": pattern},
		}
	}
	return filter
}

func searchSort(sort domainlistings.CatalogSort) bson.D {
	tail := bson.D{{Key: "created_at", Value: -1}, {Key: "_id", Value: 1}}
	switch sort {
	case domainlistings.SortByOldest:
		return bson.D{{Key: "created_at", Value: 1}, {Key: "_id", Value: 1}}
	case domainlistings.SortByPriceAsc:
		return append(bson.D{{Key: "price_ngwee", Value: 1}}, tail...)
	case domainlistings.SortByPriceDesc:
		return append(bson.D{{Key: "price_ngwee", Value: -1}}, tail...)
	case domainlistings.SortByPopular:
		return append(bson.D{{Key: "views", Value: -1}}, tail...)
	default:
		return tail
	}
}

type listingDocument struct {
	ID           string     `bson:"_id"`
	SellerID     string     `bson:"seller_id"`
	Title        string     `bson:"title"`
	Description  string     `bson:"description"`
	PriceNgwee   int64      `bson:"price_ngwee"`
	Currency     string     `bson:"currency"`
	Category     string     `bson:"category"`
	Condition    string     `bson:"condition"`
	City         string     `bson:"city"`
	Location     string     `bson:"location,omitempty"`
	Images       []string   `bson:"images"`
	Tags         []string   `bson:"tags"`
	Status       string     `bson:"status"`
	Views        int64      `bson:"views"`
	IsFeatured   bool       `bson:"is_featured"`
	IsNegotiable bool       `bson:"is_negotiable"`
	ContactPhone string     `bson:"contact_phone,omitempty"`
	ExpiresAt    time.Time  `bson:"expires_at"`
	SoldAt       *time.Time `bson:"sold_at,omitempty"`
	CreatedAt    time.Time  `bson:"created_at"`
	UpdatedAt    time.Time  `bson:"updated_at"`
}

func newListingDocument(l *domainlistings.Listing) listingDocument {
	return listingDocument{
		ID:           string(l.ID),
		SellerID:     string(l.Seller),
		Title:        l.Title,
		Description:  l.Description,
		PriceNgwee:   l.Price.Amount,
		Currency:     l.Price.Currency,
		Category:     l.Category,
		Condition:    string(l.Condition),
		City:         l.City,
		Location:     l.Location,
		Images:       append([]string{}, l.Images...),
		Tags:         append([]string{}, l.Tags...),
		Status:       string(l.Status),
		Views:        l.Views,
		IsFeatured:   l.IsFeatured,
		IsNegotiable: l.IsNegotiable,
		ContactPhone: l.ContactPhone,
		ExpiresAt:    l.ExpiresAt.UTC(),
		SoldAt:       l.SoldAt,
		CreatedAt:    l.CreatedAt.UTC(),
		UpdatedAt:    l.UpdatedAt.UTC(),
	}
}

func (d listingDocument) toAggregate() *domainlistings.Listing {
	currency := d.Currency
	if currency == "" {
		currency = money.ZMW
	}
	return &domainlistings.Listing{
		ID:           domainlistings.ListingID(d.ID),
		Seller:       domainuser.ID(d.SellerID),
		Title:        d.Title,
		Description:  d.Description,
		Price:        money.Money{Amount: d.PriceNgwee, Currency: currency},
		Category:     d.Category,
		Condition:    domainlistings.Condition(d.Condition),
		City:         d.City,
		Location:     d.Location,
		Images:       d.Images,
		Tags:         d.Tags,
		Status:       domainlistings.Status(d.Status),
		Views:        d.Views,
		IsFeatured:   d.IsFeatured,
		IsNegotiable: d.IsNegotiable,
		ContactPhone: d.ContactPhone,
		ExpiresAt:    d.ExpiresAt.UTC(),
		SoldAt:       d.SoldAt,
		CreatedAt:    d.CreatedAt.UTC(),
		UpdatedAt:    d.UpdatedAt.UTC(),
	}
}

var _ domainlistings.ListingRepository = (*ListingRepository)(nil)
