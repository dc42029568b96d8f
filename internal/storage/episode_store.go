// internal/storage/episode_store.go
package storage

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/Corphon/PodcastDigest/internal/config"
	apperrors "github.com/Corphon/PodcastDigest/internal/errors"
	"github.com/Corphon/PodcastDigest/internal/models"
)

const episodesDir = "episodes"

// EpisodeStore 保存处理结果，供历史列表查询
type EpisodeStore interface {
	Save(ctx context.Context, result *models.PodcastResult) error
	Get(ctx context.Context, id string) (*models.PodcastResult, error)
	List(ctx context.Context, limit int) ([]models.EpisodeSummary, error)
	Delete(ctx context.Context, id string) error
	Close() error
}

// NewEpisodeStore 按配置选择后端
func NewEpisodeStore(ctx context.Context, cfg *config.Config) (EpisodeStore, error) {
	switch cfg.StoreBackend {
	case config.StorePostgres:
		return NewPostgresEpisodeStore(ctx, PostgresConfig{DSN: cfg.DatabaseURL})
	case config.StoreNone:
		return NopEpisodeStore{}, nil
	default:
		return NewFileEpisodeStore(cfg.DataDir)
	}
}

// FileEpisodeStore 每个结果一个JSON文件
type FileEpisodeStore struct {
	files *FileStorage
}

// NewFileEpisodeStore 在 dataDir/episodes 下存储
func NewFileEpisodeStore(dataDir string) (*FileEpisodeStore, error) {
	files, err := NewFileStorage(dataDir)
	if err != nil {
		return nil, err
	}
	return &FileEpisodeStore{files: files}, nil
}

func (s *FileEpisodeStore) Save(ctx context.Context, result *models.PodcastResult) error {
	if result == nil || result.ID == "" {
		return apperrors.NewValidationError("episode id is required", nil)
	}
	if !validID(result.ID) {
		return apperrors.NewValidationError(fmt.Sprintf("invalid episode id: %s", result.ID), nil)
	}
	return s.files.SaveJSONFile(episodesDir, result.ID+".json", result)
}

func (s *FileEpisodeStore) Get(ctx context.Context, id string) (*models.PodcastResult, error) {
	if !validID(id) {
		return nil, apperrors.NewNotFoundError(fmt.Sprintf("episode not found: %s", id), nil)
	}

	var result models.PodcastResult
	if err := s.files.LoadJSONFile(episodesDir, id+".json", &result); err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, apperrors.NewNotFoundError(fmt.Sprintf("episode not found: %s", id), err)
		}
		return nil, err
	}
	return &result, nil
}

func (s *FileEpisodeStore) List(ctx context.Context, limit int) ([]models.EpisodeSummary, error) {
	names, err := s.files.ListFiles(episodesDir, ".json")
	if err != nil {
		return nil, err
	}
	if limit > 0 && len(names) > limit {
		names = names[:limit]
	}

	summaries := make([]models.EpisodeSummary, 0, len(names))
	for _, name := range names {
		var result models.PodcastResult
		if err := s.files.LoadJSONFile(episodesDir, name, &result); err != nil {
			// 损坏的文件跳过
			continue
		}
		summaries = append(summaries, result.Summary())
	}
	return summaries, nil
}

func (s *FileEpisodeStore) Delete(ctx context.Context, id string) error {
	if !validID(id) || !s.files.FileExists(episodesDir, id+".json") {
		return apperrors.NewNotFoundError(fmt.Sprintf("episode not found: %s", id), nil)
	}
	return s.files.DeleteFile(episodesDir, id+".json")
}

func (s *FileEpisodeStore) Close() error {
	return nil
}

// validID 只允许 uuid 形式的字符，防止路径穿越
func validID(id string) bool {
	if id == "" || len(id) > 64 {
		return false
	}
	return strings.IndexFunc(id, func(r rune) bool {
		return !(r == '-' || (r >= '0' && r <= '9') || (r >= 'a' && r <= 'z') || (r >= 'A' && r <= 'Z'))
	}) < 0
}

// NopEpisodeStore 不保存任何结果
type NopEpisodeStore struct{}

func (NopEpisodeStore) Save(context.Context, *models.PodcastResult) error { return nil }

func (NopEpisodeStore) Get(_ context.Context, id string) (*models.PodcastResult, error) {
	return nil, apperrors.NewNotFoundError(fmt.Sprintf("episode not found: %s", id), nil)
}

func (NopEpisodeStore) List(context.Context, int) ([]models.EpisodeSummary, error) {
	return []models.EpisodeSummary{}, nil
}

func (NopEpisodeStore) Delete(_ context.Context, id string) error {
	return apperrors.NewNotFoundError(fmt.Sprintf("episode not found: %s", id), nil)
}

func (NopEpisodeStore) Close() error { return nil }
