package tiger

import (
	"context"
	"os"
	"path/filepath"
	"strings"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/crosswalk-cli/internal/fetcher"
)

// Download fetches a TIGER/Line ZIP archive into destDir and extracts it.
// An archive already on disk is reused. Returns the path to the .shp file.
func Download(ctx context.Context, f fetcher.Fetcher, url, destDir string) (string, error) {
	log := zap.L().With(
		zap.String("component", "tiger.download"),
		zap.String("url", url),
	)

	if err := os.MkdirAll(destDir, 0o755); err != nil {
		return "", eris.Wrap(err, "tiger: create dest dir")
	}
	zipPath := filepath.Join(destDir, archiveName(url))

	if info, err := os.Stat(zipPath); err == nil && info.Size() > 0 {
		log.Debug("zip already exists, skipping download", zap.String("path", zipPath))
	} else {
		log.Info("downloading TIGER shapefile")
		if _, err := f.DownloadToFile(ctx, url, zipPath); err != nil {
			return "", eris.Wrap(err, "tiger: download shapefile")
		}
	}
	return extract(zipPath, destDir)
}

// Refresh re-downloads an archive only when the server's ETag differs from the
// one recorded beside the cached copy. It returns the .shp path and whether a
// new archive was fetched.
func Refresh(ctx context.Context, f fetcher.Fetcher, url, destDir string) (string, bool, error) {
	if err := os.MkdirAll(destDir, 0o755); err != nil {
		return "", false, eris.Wrap(err, "tiger: create dest dir")
	}
	zipPath := filepath.Join(destDir, archiveName(url))
	etagPath := zipPath + ".etag"

	var etag string
	if _, err := os.Stat(zipPath); err == nil {
		if b, rerr := os.ReadFile(etagPath); rerr == nil {
			etag = strings.TrimSpace(string(b))
		}
	}

	body, newTag, changed, err := f.DownloadIfChanged(ctx, url, etag)
	if err != nil {
		return "", false, eris.Wrap(err, "tiger: refresh shapefile")
	}
	if changed {
		defer body.Close() //nolint:errcheck
		if _, err := fetcher.WriteAtomic(zipPath, body); err != nil {
			return "", false, eris.Wrap(err, "tiger: refresh shapefile")
		}
		if newTag != "" {
			if err := os.WriteFile(etagPath, []byte(newTag), 0o644); err != nil {
				return "", false, eris.Wrap(err, "tiger: write etag")
			}
		}
		zap.L().Info("tiger: archive refreshed", zap.String("url", url), zap.String("etag", newTag))
	}

	shpPath, err := extract(zipPath, destDir)
	if err != nil {
		return "", false, err
	}
	return shpPath, changed, nil
}

func archiveName(url string) string {
	parts := strings.Split(url, "/")
	return parts[len(parts)-1]
}

func extract(zipPath, destDir string) (string, error) {
	extractDir := filepath.Join(destDir, strings.TrimSuffix(filepath.Base(zipPath), ".zip"))
	files, err := fetcher.ExtractZIP(zipPath, extractDir)
	if err != nil {
		return "", eris.Wrap(err, "tiger: extract ZIP")
	}
	shpPath, ok := fetcher.FindByExt(files, ".shp")
	if !ok {
		return "", eris.Errorf("tiger: no .shp file in %s", zipPath)
	}
	return shpPath, nil
}
