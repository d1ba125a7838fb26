package ginserver

import (
	"bytes"
	"fmt"
	"io"
	"log/slog"
	"mime/multipart"
	"net/http"
	"strconv"
	"strings"

	gin "github.com/gin-gonic/gin"

	"zedflip/internal/app/commands"
	"zedflip/internal/app/dto"
	listingapp "zedflip/internal/app/handlers/listings"
	"zedflip/internal/app/queries"
	domainlistings "zedflip/internal/domain/listings"
	domainuser "zedflip/internal/domain/user"
)

const maxListingImageBytes = 5 << 20

// ListingHandler wires listing commands and queries to HTTP.
type ListingHandler struct {
	Commands commands.Bus
	Queries  queries.Bus
	Logger   *slog.Logger
}

type listingRequest struct {
	Title        string   `json:"title"`
	Description  string   `json:"description"`
	Price        float64  `json:"price"`
	Category     string   `json:"category"`
	Condition    string   `json:"condition"`
	City         string   `json:"city"`
	Location     string   `json:"location"`
	Tags         []string `json:"tags"`
	IsNegotiable bool     `json:"isNegotiable"`
	ContactPhone string   `json:"contactPhone"`
}

func (r listingRequest) payload() listingapp.ListingPayload {
	return listingapp.ListingPayload{
		Title:        r.Title,
		Description:  r.Description,
		Price:        r.Price,
		Category:     r.Category,
		Condition:    r.Condition,
		City:         r.City,
		Location:     r.Location,
		Tags:         cleanStrings(r.Tags),
		IsNegotiable: r.IsNegotiable,
		ContactPhone: strings.TrimSpace(r.ContactPhone),
	}
}

func (h ListingHandler) SellerProfile(c *gin.Context) {
	query := listingapp.SellerProfileQuery{UserID: c.Param("id")}
	result, err := queries.Ask[listingapp.SellerProfileQuery, dto.SellerProfile](c.Request.Context(), h.Queries, query)
	if err != nil {
		respondError(c, h.Logger, err)
		return
	}
	respondOK(c, http.StatusOK, result)
}

func (h ListingHandler) SellerListings(c *gin.Context) {
	query := listingapp.SellerListingsQuery{
		SellerID: c.Param("id"),
		Status:   c.Query("status"),
		Page:     parseIntWithDefault(c.Query("page"), 1),
		Limit:    parseIntWithDefault(c.Query("limit"), 10),
	}
	result, err := queries.Ask[listingapp.SellerListingsQuery, dto.ListingPage](c.Request.Context(), h.Queries, query)
	if err != nil {
		respondError(c, h.Logger, err)
		return
	}
	respondOK(c, http.StatusOK, result)
}

func (h ListingHandler) Search(c *gin.Context) {
	query := listingapp.SearchListingsQuery{
		Query:     c.Query("q"),
		Category:  c.Query("category"),
		City:      c.Query("city"),
		Condition: c.Query("condition"),
		SellerID:  c.Query("seller"),
		MinPrice:  parseFloat(c.Query("minPrice")),
		MaxPrice:  parseFloat(c.Query("maxPrice")),
		Sort:      c.Query("sort"),
		Page:      parseIntWithDefault(c.Query("page"), 1),
		Limit:     parseIntWithDefault(c.Query("limit"), 20),
	}
	result, err := queries.Ask[listingapp.SearchListingsQuery, dto.ListingPage](c.Request.Context(), h.Queries, query)
	if err != nil {
		respondError(c, h.Logger, err)
		return
	}
	respondOK(c, http.StatusOK, result)
}

func (h ListingHandler) Featured(c *gin.Context) {
	result, err := queries.Ask[listingapp.FeaturedListingsQuery, []dto.Listing](c.Request.Context(), h.Queries, listingapp.FeaturedListingsQuery{})
	if err != nil {
		respondError(c, h.Logger, err)
		return
	}
	respondOK(c, http.StatusOK, result)
}

// Get counts a view; it is dispatched as a command for that reason.
func (h ListingHandler) Get(c *gin.Context) {
	cmd := listingapp.ViewListingCommand{ListingID: c.Param("id")}
	result, err := commands.Dispatch[listingapp.ViewListingCommand, dto.ListingDetail](c.Request.Context(), h.Commands, cmd)
	if err != nil {
		respondError(c, h.Logger, err)
		return
	}
	respondOK(c, http.StatusOK, result)
}

func (h ListingHandler) Create(c *gin.Context) {
	principal, ok := requireAuth(c)
	if !ok {
		return
	}
	var req listingRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondError(c, h.Logger, errInvalidBody)
		return
	}
	cmd := listingapp.CreateListingCommand{SellerID: string(principal.UserID()), Payload: req.payload()}
	result, err := commands.Dispatch[listingapp.CreateListingCommand, dto.Listing](c.Request.Context(), h.Commands, cmd)
	if err != nil {
		respondError(c, h.Logger, err)
		return
	}
	c.JSON(http.StatusCreated, dto.OKWithMessage("Listing created", result))
}

func (h ListingHandler) Update(c *gin.Context) {
	principal, ok := requireAuth(c)
	if !ok {
		return
	}
	var req listingRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondError(c, h.Logger, errInvalidBody)
		return
	}
	cmd := listingapp.UpdateListingCommand{
		ActorID:   string(principal.UserID()),
		ListingID: c.Param("id"),
		Payload:   req.payload(),
	}
	result, err := commands.Dispatch[listingapp.UpdateListingCommand, dto.Listing](c.Request.Context(), h.Commands, cmd)
	if err != nil {
		respondError(c, h.Logger, err)
		return
	}
	respondOK(c, http.StatusOK, result)
}

func (h ListingHandler) Delete(c *gin.Context) {
	principal, ok := requireAuth(c)
	if !ok {
		return
	}
	cmd := listingapp.DeleteListingCommand{
		ActorID:   string(principal.UserID()),
		ListingID: c.Param("id"),
		AsAdmin:   principal.User.HasRole(domainuser.RoleAdmin),
	}
	if _, err := commands.Dispatch[listingapp.DeleteListingCommand, dto.Empty](c.Request.Context(), h.Commands, cmd); err != nil {
		respondError(c, h.Logger, err)
		return
	}
	c.JSON(http.StatusOK, dto.Done("Listing deleted"))
}

func (h ListingHandler) MarkSold(c *gin.Context) {
	principal, ok := requireAuth(c)
	if !ok {
		return
	}
	cmd := listingapp.MarkSoldCommand{ActorID: string(principal.UserID()), ListingID: c.Param("id")}
	result, err := commands.Dispatch[listingapp.MarkSoldCommand, dto.Listing](c.Request.Context(), h.Commands, cmd)
	if err != nil {
		respondError(c, h.Logger, err)
		return
	}
	respondOK(c, http.StatusOK, result)
}

// UploadImages accepts one or more files in the "images" (or "image") form
// field and stores them in order. The first failure stops the batch.
func (h ListingHandler) UploadImages(c *gin.Context) {
	principal, ok := requireAuth(c)
	if !ok {
		return
	}
	form, err := c.MultipartForm()
	if err != nil {
		respondError(c, h.Logger, listingapp.ErrImageRequired)
		return
	}
	files := append(form.File["images"], form.File["image"]...)
	if len(files) == 0 {
		respondError(c, h.Logger, listingapp.ErrImageRequired)
		return
	}
	if len(files) > domainlistings.MaxImages {
		respondError(c, h.Logger, domainlistings.ErrTooManyImages)
		return
	}
	var last dto.ListingImageUpload
	for _, fh := range files {
		cmd, err := imageCommand(fh)
		if err != nil {
			respondStatus(c, http.StatusBadRequest, publicMessage(err))
			return
		}
		cmd.ActorID = string(principal.UserID())
		cmd.ListingID = c.Param("id")
		last, err = commands.Dispatch[listingapp.UploadListingImageCommand, dto.ListingImageUpload](c.Request.Context(), h.Commands, cmd)
		if err != nil {
			respondError(c, h.Logger, err)
			return
		}
	}
	respondOK(c, http.StatusCreated, last)
}

func imageCommand(fh *multipart.FileHeader) (listingapp.UploadListingImageCommand, error) {
	if fh.Size > maxListingImageBytes {
		return listingapp.UploadListingImageCommand{}, fmt.Errorf("image: file too large (max %d MB)", maxListingImageBytes>>20)
	}
	file, err := fh.Open()
	if err != nil {
		return listingapp.UploadListingImageCommand{}, listingapp.ErrImageRequired
	}
	defer file.Close()
	data, err := io.ReadAll(io.LimitReader(file, maxListingImageBytes+1))
	if err != nil || len(data) == 0 {
		return listingapp.UploadListingImageCommand{}, listingapp.ErrImageRequired
	}
	if len(data) > maxListingImageBytes {
		return listingapp.UploadListingImageCommand{}, fmt.Errorf("image: file too large (max %d MB)", maxListingImageBytes>>20)
	}
	return listingapp.UploadListingImageCommand{
		FileName:    fh.Filename,
		ContentType: http.DetectContentType(data),
		Size:        int64(len(data)),
		Reader:      bytes.NewReader(data),
	}, nil
}

func cleanStrings(values []string) []string {
	out := make([]string, 0, len(values))
	for _, v := range values {
		if v = strings.TrimSpace(v); v != "" {
			out = append(out, v)
		}
	}
	return out
}

func parseIntWithDefault(raw string, fallback int) int {
	value, err := strconv.Atoi(strings.TrimSpace(raw))
	if err != nil || value <= 0 {
		return fallback
	}
	return value
}

func parseFloat(raw string) float64 {
	value, err := strconv.ParseFloat(strings.TrimSpace(raw), 64)
	if err != nil || value < 0 {
		return 0
	}
	return value
}

var _ ListingHTTP = ListingHandler{}
