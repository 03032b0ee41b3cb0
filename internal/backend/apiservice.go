package backend

import (
	"errors"
	"io"
	"log/slog"
	"net/http"
	"strings"

	"github.com/jo-hoe/picstash/internal/core"
	"github.com/jo-hoe/picstash/internal/ingest"

	"github.com/labstack/echo/v4"
)

// userIDHeader names the header carrying the authenticated user. The actual
// authentication sits in front of this service.
const userIDHeader = "X-User-ID"

type APIService struct {
	coreService *core.CoreService
}

func NewAPIService(coreService *core.CoreService) *APIService {
	return &APIService{coreService: coreService}
}

func (s *APIService) SetRoutes(e *echo.Echo) {
	e.GET("/probe", s.probeHandler)

	e.POST("/api/users", s.createUserHandler)
	e.GET("/api/users/quota", s.getQuotaHandler)

	e.POST("/api/images", s.uploadImageHandler)
	e.GET("/api/images", s.listImagesHandler)
	e.GET("/api/images/:id", s.getImageHandler)
	e.GET("/api/images/:id/content", s.getImageContentHandler)
	e.PUT("/api/images/:id/visibility", s.setVisibilityHandler)
	e.DELETE("/api/images/:id", s.deleteImageHandler)
}

type createUserRequest struct {
	Name              string `json:"name" validate:"required"`
	StorageLimitBytes int64  `json:"storageLimitBytes"`
}

type userResponse struct {
	ID           string `json:"id"`
	Name         string `json:"name"`
	StorageUsed  int64  `json:"storageUsed"`
	StorageLimit int64  `json:"storageLimit"`
}

type renditionResponse struct {
	Kind   string `json:"kind"`
	Size   int64  `json:"size"`
	Width  int    `json:"width"`
	Height int    `json:"height"`
}

type assetResponse struct {
	ID           string              `json:"id"`
	Title        string              `json:"title"`
	Description  string              `json:"description"`
	OriginalName string              `json:"originalName"`
	MIMEType     string              `json:"mimeType"`
	Size         int64               `json:"size"`
	Width        int                 `json:"width"`
	Height       int                 `json:"height"`
	IsPublic     bool                `json:"isPublic"`
	CreatedAt    string              `json:"createdAt"`
	Renditions   []renditionResponse `json:"renditions,omitempty"`
}

func toAssetResponse(asset *ingest.Asset, renditions []ingest.Rendition) assetResponse {
	response := assetResponse{
		ID:           asset.ID,
		Title:        asset.Title,
		Description:  asset.Description,
		OriginalName: asset.OriginalName,
		MIMEType:     asset.MIMEType,
		Size:         asset.Size,
		Width:        asset.Width,
		Height:       asset.Height,
		IsPublic:     asset.IsPublic,
		CreatedAt:    asset.CreatedAt.Format("2006-01-02T15:04:05Z07:00"),
	}
	for _, rendition := range renditions {
		response.Renditions = append(response.Renditions, renditionResponse{
			Kind:   rendition.Kind.String(),
			Size:   rendition.Size,
			Width:  rendition.Width,
			Height: rendition.Height,
		})
	}
	return response
}

func (s *APIService) probeHandler(c echo.Context) error {
	return c.String(http.StatusOK, "API Service is running")
}

func (s *APIService) createUserHandler(c echo.Context) error {
	var request createUserRequest
	if err := c.Bind(&request); err != nil {
		return c.JSON(http.StatusBadRequest, map[string]string{"error": "invalid request body"})
	}
	if err := c.Validate(&request); err != nil {
		return err
	}

	user, err := s.coreService.CreateUser(c.Request().Context(), request.Name, request.StorageLimitBytes)
	if err != nil {
		slog.Error("createUserHandler: failed to create user", "error", err)
		return c.JSON(http.StatusInternalServerError, map[string]string{"error": "failed to create user"})
	}
	return c.JSON(http.StatusCreated, userResponse{
		ID:           user.ID,
		Name:         user.Name,
		StorageUsed:  user.StorageUsed,
		StorageLimit: user.StorageLimit,
	})
}

func (s *APIService) getQuotaHandler(c echo.Context) error {
	userID, err := requireUser(c)
	if err != nil {
		return err
	}

	user, err := s.coreService.GetUser(c.Request().Context(), userID)
	if err != nil {
		slog.Error("getQuotaHandler: failed to load user", "user_id", userID, "error", err)
		return c.JSON(http.StatusInternalServerError, map[string]string{"error": "failed to load user"})
	}
	if user == nil {
		return c.JSON(http.StatusNotFound, map[string]string{"error": "unknown user"})
	}
	return c.JSON(http.StatusOK, userResponse{
		ID:           user.ID,
		Name:         user.Name,
		StorageUsed:  user.StorageUsed,
		StorageLimit: user.StorageLimit,
	})
}

func (s *APIService) uploadImageHandler(c echo.Context) error {
	userID, err := requireUser(c)
	if err != nil {
		return err
	}

	file, err := c.FormFile("image")
	if err != nil {
		return c.JSON(http.StatusBadRequest, map[string]string{"error": "no image file provided"})
	}

	src, err := file.Open()
	if err != nil {
		slog.Error("uploadImageHandler: failed to open uploaded file", "error", err, "filename", file.Filename)
		return c.JSON(http.StatusInternalServerError, map[string]string{"error": "failed to open uploaded file"})
	}
	defer func() {
		if cerr := src.Close(); cerr != nil {
			slog.Error("uploadImageHandler: failed to close uploaded file reader", "error", cerr, "filename", file.Filename)
		}
	}()

	data, err := io.ReadAll(src)
	if err != nil {
		slog.Error("uploadImageHandler: failed to read uploaded file", "error", err, "filename", file.Filename)
		return c.JSON(http.StatusInternalServerError, map[string]string{"error": "failed to read uploaded file"})
	}

	title := c.FormValue("title")
	result, err := s.coreService.Ingest(c.Request().Context(), userID, file.Filename, data, title)
	if err != nil {
		return s.writeIngestError(c, err, file.Filename)
	}

	return c.JSON(http.StatusCreated, toAssetResponse(result.Asset, result.Renditions))
}

func (s *APIService) listImagesHandler(c echo.Context) error {
	userID, err := requireUser(c)
	if err != nil {
		return err
	}

	assets, err := s.coreService.ListAssets(c.Request().Context(), userID)
	if err != nil {
		slog.Error("listImagesHandler: failed to list assets", "user_id", userID, "error", err)
		return c.JSON(http.StatusInternalServerError, map[string]string{"error": "failed to list images"})
	}

	responses := make([]assetResponse, 0, len(assets))
	for _, asset := range assets {
		responses = append(responses, toAssetResponse(asset, nil))
	}
	return c.JSON(http.StatusOK, map[string]any{"images": responses})
}

func (s *APIService) getImageHandler(c echo.Context) error {
	userID, err := requireUser(c)
	if err != nil {
		return err
	}

	asset, renditions, err := s.coreService.GetAsset(c.Request().Context(), userID, c.Param("id"))
	if err != nil {
		if errors.Is(err, ingest.ErrNotFound) {
			return c.JSON(http.StatusNotFound, map[string]string{"error": "image not found"})
		}
		slog.Error("getImageHandler: failed to load asset", "asset_id", c.Param("id"), "error", err)
		return c.JSON(http.StatusInternalServerError, map[string]string{"error": "failed to load image"})
	}
	return c.JSON(http.StatusOK, toAssetResponse(asset, renditions))
}

func (s *APIService) getImageContentHandler(c echo.Context) error {
	userID, err := requireUser(c)
	if err != nil {
		return err
	}

	kind := ingest.KindOriginal
	if size := c.QueryParam("size"); size != "" {
		kind = ingest.RenditionKind(strings.ToUpper(size))
	}

	data, err := s.coreService.GetRenditionContent(c.Request().Context(), userID, c.Param("id"), kind)
	if err != nil {
		if errors.Is(err, ingest.ErrNotFound) {
			return c.JSON(http.StatusNotFound, map[string]string{"error": "image not found"})
		}
		slog.Error("getImageContentHandler: failed to read rendition",
			"asset_id", c.Param("id"), "kind", kind, "error", err)
		return c.JSON(http.StatusInternalServerError, map[string]string{"error": "failed to read image"})
	}
	return c.Blob(http.StatusOK, ingest.MIMEJPEG, data)
}

type visibilityRequest struct {
	Public bool `json:"public"`
}

func (s *APIService) setVisibilityHandler(c echo.Context) error {
	userID, err := requireUser(c)
	if err != nil {
		return err
	}

	var request visibilityRequest
	if err := c.Bind(&request); err != nil {
		return c.JSON(http.StatusBadRequest, map[string]string{"error": "invalid request body"})
	}

	if err := s.coreService.SetAssetVisibility(c.Request().Context(), userID, c.Param("id"), request.Public); err != nil {
		if errors.Is(err, ingest.ErrNotFound) {
			return c.JSON(http.StatusNotFound, map[string]string{"error": "image not found"})
		}
		slog.Error("setVisibilityHandler: failed to update visibility", "asset_id", c.Param("id"), "error", err)
		return c.JSON(http.StatusInternalServerError, map[string]string{"error": "failed to update image"})
	}
	return c.JSON(http.StatusOK, map[string]string{"message": "visibility updated"})
}

func (s *APIService) deleteImageHandler(c echo.Context) error {
	userID, err := requireUser(c)
	if err != nil {
		return err
	}

	if err := s.coreService.DeleteAsset(c.Request().Context(), userID, c.Param("id")); err != nil {
		if errors.Is(err, ingest.ErrNotFound) {
			return c.JSON(http.StatusNotFound, map[string]string{"error": "image not found"})
		}
		slog.Error("deleteImageHandler: failed to delete asset", "asset_id", c.Param("id"), "error", err)
		return c.JSON(http.StatusInternalServerError, map[string]string{"error": "failed to delete image"})
	}
	return c.JSON(http.StatusOK, map[string]string{"message": "image deleted"})
}

// writeIngestError maps the typed pipeline errors onto HTTP responses.
// Invariant violations never reach this point verbatim; they are logged
// inside the pipeline and surface here as generic internal errors.
func (s *APIService) writeIngestError(c echo.Context, err error, filename string) error {
	var decodeErr *ingest.DecodeError
	var encodeErr *ingest.EncodeError
	var storageErr *ingest.StorageError

	switch {
	case errors.Is(err, ingest.ErrInvalidInput):
		return c.JSON(http.StatusBadRequest, map[string]string{"error": err.Error()})
	case errors.As(err, &decodeErr):
		return c.JSON(http.StatusBadRequest, map[string]string{"error": "unsupported or corrupt image"})
	case errors.Is(err, ingest.ErrQuotaExceeded):
		return c.JSON(http.StatusBadRequest, map[string]string{"error": "storage limit exceeded"})
	case errors.As(err, &encodeErr):
		slog.Error("uploadImageHandler: rendition encoding failed", "error", err, "filename", filename)
		return c.JSON(http.StatusInternalServerError, map[string]string{"error": "failed to process image"})
	case errors.As(err, &storageErr):
		slog.Error("uploadImageHandler: storage failure", "error", err, "filename", filename)
		return c.JSON(http.StatusServiceUnavailable, map[string]string{"error": "temporary storage failure, please retry"})
	default:
		slog.Error("uploadImageHandler: upload failed", "error", err, "filename", filename)
		return c.JSON(http.StatusInternalServerError, map[string]string{"error": "failed to upload image"})
	}
}

func requireUser(c echo.Context) (string, error) {
	userID := c.Request().Header.Get(userIDHeader)
	if userID == "" {
		return "", echo.NewHTTPError(http.StatusBadRequest, "missing "+userIDHeader+" header")
	}
	return userID, nil
}
