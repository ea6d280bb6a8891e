package services

import (
	"fmt"
	"os"
	"path/filepath"
)

// StageFiles writes the uploaded sheet and images under dir/<jobID>/ so a
// worker can pick them up later. It returns the sheet path and the image
// paths in upload order.
func StageFiles(dir, jobID string, in Input) (string, []string, error) {
	jobDir := filepath.Join(dir, jobID)
	imgDir := filepath.Join(jobDir, "images")
	if err := os.MkdirAll(imgDir, 0o755); err != nil {
		return "", nil, fmt.Errorf("failed to create storage directory: %w", err)
	}

	sheetPath := filepath.Join(jobDir, filepath.Base(in.SheetName))
	if err := os.WriteFile(sheetPath, in.SheetData, 0o644); err != nil {
		return "", nil, fmt.Errorf("failed to save sheet: %w", err)
	}

	paths := make([]string, 0, len(in.Images))
	for i, img := range in.Images {
		// the index prefix keeps same-named uploads apart and preserves order
		p := filepath.Join(imgDir, fmt.Sprintf("%04d_%s", i, filepath.Base(img.FileName)))
		if err := os.WriteFile(p, img.Data, 0o644); err != nil {
			return "", nil, fmt.Errorf("failed to save image %s: %w", img.FileName, err)
		}
		paths = append(paths, p)
	}
	return sheetPath, paths, nil
}

// LoadStagedInput reads back what StageFiles wrote, restoring the original
// image names.
func LoadStagedInput(merchantID, sheetPath string, imagePaths []string) (Input, error) {
	data, err := os.ReadFile(filepath.Clean(sheetPath))
	if err != nil {
		return Input{}, fmt.Errorf("read sheet: %w", err)
	}
	in := Input{
		MerchantID: merchantID,
		SheetName:  filepath.Base(sheetPath),
		SheetData:  data,
		Images:     make([]ImageFile, 0, len(imagePaths)),
	}
	for _, p := range imagePaths {
		b, err := os.ReadFile(filepath.Clean(p))
		if err != nil {
			return Input{}, fmt.Errorf("read image: %w", err)
		}
		in.Images = append(in.Images, ImageFile{FileName: originalName(filepath.Base(p)), Data: b})
	}
	return in, nil
}

func originalName(staged string) string {
	if len(staged) > 5 && staged[4] == '_' {
		return staged[5:]
	}
	return staged
}
