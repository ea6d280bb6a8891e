package controllers

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/go-playground/validator/v10"

	apperrors "github.com/carloz138/catalogo-magico-mx-sub005/common/errors"
	"github.com/carloz138/catalogo-magico-mx-sub005/services"
	"github.com/carloz138/catalogo-magico-mx-sub005/sheet"
)

const (
	MaxUploadSize    = 50 << 20
	merchantHeader   = "X-Merchant-ID"
	sheetField       = "sheet"
	imagesField      = "images[]"
	imagesFieldPlain = "images"
)

// ingestionForm holds the non-file fields of an ingestion upload.
type ingestionForm struct {
	MerchantID string `validate:"required,max=128"`
	Duplicates string `form:"duplicates" validate:"omitempty,oneof=block skip cancel"`
	Overrides  string `form:"overrides" validate:"omitempty,json"`
}

// RequestValidator checks ingestion uploads before they reach the service.
type RequestValidator struct {
	validate      *validator.Validate
	maxUploadSize int64
}

func NewRequestValidator(maxUploadSize int64) *RequestValidator {
	if maxUploadSize <= 0 {
		maxUploadSize = MaxUploadSize
	}
	return &RequestValidator{validate: validator.New(), maxUploadSize: maxUploadSize}
}

// ReadInput parses the multipart upload into a service input. It returns the
// raw duplicate policy field alongside.
func (rv *RequestValidator) ReadInput(c *gin.Context) (services.Input, string, error) {
	c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, rv.maxUploadSize)
	form, err := c.MultipartForm()
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) || strings.Contains(err.Error(), "request body too large") {
			return services.Input{}, "", apperrors.New(http.StatusRequestEntityTooLarge,
				fmt.Sprintf("upload exceeds %d MB", rv.maxUploadSize>>20), err)
		}
		return services.Input{}, "", apperrors.New(http.StatusBadRequest, "multipart form required", err)
	}

	f := ingestionForm{
		MerchantID: c.GetHeader(merchantHeader),
		Duplicates: c.PostForm("duplicates"),
		Overrides:  c.PostForm("overrides"),
	}
	if err := rv.validate.Struct(f); err != nil {
		return services.Input{}, "", apperrors.New(http.StatusBadRequest, describe(err), err)
	}

	in := services.Input{MerchantID: f.MerchantID}
	if f.Overrides != "" {
		if err := json.Unmarshal([]byte(f.Overrides), &in.Overrides); err != nil {
			return services.Input{}, "", apperrors.New(http.StatusBadRequest, "overrides must map SKUs to image ids", err)
		}
	}

	sheets := form.File[sheetField]
	if len(sheets) != 1 {
		return services.Input{}, "", apperrors.New(http.StatusBadRequest, "exactly one sheet file is required", nil)
	}
	if _, err := sheet.FormatFromName(sheets[0].Filename); err != nil {
		return services.Input{}, "", apperrors.New(http.StatusBadRequest, "invalid file type. Only .csv and .xlsx sheets are allowed", err)
	}
	in.SheetName = sheets[0].Filename
	if in.SheetData, err = readPart(sheets[0]); err != nil {
		return services.Input{}, "", err
	}

	files := append(form.File[imagesField], form.File[imagesFieldPlain]...)
	verr := &apperrors.ValidationError{}
	for _, fh := range files {
		if fh.Size > services.MaxImageBytes {
			verr.Add(apperrors.RowError{File: fh.Filename, Field: "image", Message: "image exceeds 25 MB"})
			continue
		}
		data, err := readPart(fh)
		if err != nil {
			return services.Input{}, "", err
		}
		in.Images = append(in.Images, services.ImageFile{FileName: fh.Filename, Data: data})
	}
	if err := verr.OrNil(); err != nil {
		return services.Input{}, "", err
	}
	return in, f.Duplicates, nil
}

func readPart(fh *multipart.FileHeader) ([]byte, error) {
	f, err := fh.Open()
	if err != nil {
		return nil, apperrors.New(http.StatusBadRequest, "failed to open "+fh.Filename, err)
	}
	defer f.Close()
	data, err := io.ReadAll(f)
	if err != nil {
		return nil, apperrors.New(http.StatusBadRequest, "failed to read "+fh.Filename, err)
	}
	return data, nil
}

func describe(err error) string {
	verrs, ok := err.(validator.ValidationErrors)
	if !ok || len(verrs) == 0 {
		return err.Error()
	}
	fe := verrs[0]
	switch fe.Field() {
	case "MerchantID":
		return merchantHeader + " header is required"
	case "Duplicates":
		return "duplicates must be one of block, skip, cancel"
	case "Overrides":
		return "overrides must be a JSON object"
	}
	return fmt.Sprintf("%s is invalid", fe.Field())
}
