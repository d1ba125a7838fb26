package listings

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"path"
	"strings"

	"github.com/google/uuid"

	"zedflip/internal/app/commands"
	"zedflip/internal/app/dto"
	"zedflip/internal/app/handlers/support"
	"zedflip/internal/app/outbox"
	"zedflip/internal/app/policies"
	"zedflip/internal/app/uow"
	domainlistings "zedflip/internal/domain/listings"
)

const uploadListingImageKey = "listings.images.upload"

var (
	ErrImageStoreUnavailable = errors.New("listings: image storage unavailable")
	ErrImageRequired         = errors.New("listings: image file is required")
	ErrImageType             = errors.New("listings: only jpeg, png and webp images are accepted")
)

var allowedImageTypes = map[string]string{
	"image/jpeg": ".jpg",
	"image/png":  ".png",
	"image/webp": ".webp",
}

type UploadListingImageCommand struct {
	ActorID     string
	ListingID   string
	FileName    string
	ContentType string
	Size        int64
	Reader      io.Reader
}

func (c UploadListingImageCommand) Key() string { return uploadListingImageKey }

func (c UploadListingImageCommand) Validate() error {
	if c.Reader == nil || c.Size == 0 {
		return ErrImageRequired
	}
	if _, ok := allowedImageTypes[strings.ToLower(c.ContentType)]; !ok {
		return ErrImageType
	}
	return nil
}

type UploadListingImageHandler struct {
	listingHandler
	Images policies.ImageStore
}

func NewUploadListingImageHandler(factory uow.UoWFactory, box outbox.Outbox, images policies.ImageStore, logger *slog.Logger) *UploadListingImageHandler {
	return &UploadListingImageHandler{
		listingHandler: listingHandler{UoWFactory: factory, Outbox: box, Logger: logger},
		Images:         images,
	}
}

func (h *UploadListingImageHandler) Handle(ctx context.Context, cmd UploadListingImageCommand) (dto.ListingImageUpload, error) {
	if h.Images == nil {
		return dto.ListingImageUpload{}, ErrImageStoreUnavailable
	}
	var out dto.ListingImageUpload
	err := support.WithUnit(ctx, h.UoWFactory, uow.TxOptions{}, func(ctx context.Context, unit uow.UnitOfWork) error {
		listing, err := ownedListing(ctx, unit, cmd.ListingID, cmd.ActorID, false)
		if err != nil {
			return err
		}
		if len(listing.Images) >= domainlistings.MaxImages {
			return domainlistings.ErrTooManyImages
		}
		key := objectKey(listing.ID, cmd.ContentType)
		url, err := h.Images.Upload(ctx, key, cmd.Reader, cmd.Size, cmd.ContentType)
		if err != nil {
			return fmt.Errorf("upload listing image: %w", err)
		}
		if err := listing.AddImage(url, h.now()); err != nil {
			return err
		}
		if err := h.save(ctx, unit, listing); err != nil {
			return err
		}
		out = dto.ListingImageUpload{
			ListingID: string(listing.ID),
			URL:       url,
			Images:    append([]string(nil), listing.Images...),
		}
		h.logger().Info("listing image added", "listing_id", listing.ID, "object_key", key, "file_name", cmd.FileName)
		return nil
	})
	if err != nil {
		return dto.ListingImageUpload{}, err
	}
	return out, nil
}

func objectKey(id domainlistings.ListingID, contentType string) string {
	return path.Join("listings", string(id), uuid.NewString()+allowedImageTypes[strings.ToLower(contentType)])
}

var _ commands.Handler[UploadListingImageCommand, dto.ListingImageUpload] = (*UploadListingImageHandler)(nil)
