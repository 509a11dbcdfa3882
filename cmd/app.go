package cmd

import (
	"fmt"
	"log"
	"os"
	"path/filepath"

	"gorm.io/gorm"

	"github.com/camden-git/faceattend/config"
	"github.com/camden-git/faceattend/database"
	"github.com/camden-git/faceattend/gallery"
	"github.com/camden-git/faceattend/media"
	"github.com/camden-git/faceattend/repository"
	"github.com/camden-git/faceattend/services"
	"github.com/camden-git/faceattend/workers"
)

// app holds the components shared by the subcommands. fields are filled on
// demand by the open* helpers and released by close.
type app struct {
	cfg      config.Config
	rotation media.Rotation

	db        *gorm.DB
	employees *repository.EmployeeRepository

	gallery  *gallery.Gallery
	closers  []func()
	detector *media.CascadeDetector
}

func loadApp() (*app, error) {
	cfg, err := config.LoadConfig()
	if err != nil {
		return nil, fmt.Errorf("failed to load configuration: %w", err)
	}
	rotation, err := media.ParseRotation(cfg.Rotation)
	if err != nil {
		return nil, err
	}
	return &app{cfg: cfg, rotation: rotation}, nil
}

func (a *app) close() {
	for i := len(a.closers) - 1; i >= 0; i-- {
		a.closers[i]()
	}
	a.closers = nil
}

func (a *app) openEmployees() (*repository.EmployeeRepository, error) {
	if a.employees != nil {
		return a.employees, nil
	}
	if dir := filepath.Dir(a.cfg.DatabasePath); dir != "" {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, fmt.Errorf("failed to create database directory %s: %w", dir, err)
		}
	}
	db, err := database.InitGormDB(database.SQLiteDSN(a.cfg.DatabasePath))
	if err != nil {
		return nil, err
	}
	a.closers = append(a.closers, func() {
		if sqlDB, err := db.DB(); err == nil {
			sqlDB.Close()
		}
	})
	if err := database.AutoMigrateModels(db); err != nil {
		return nil, err
	}
	a.db = db
	a.employees = repository.NewEmployeeRepository(db)
	return a.employees, nil
}

func (a *app) newDetector() (*media.CascadeDetector, error) {
	det, err := media.NewCascadeDetector(a.cfg.CascadePrimaryPath, a.cfg.CascadeAltPath)
	if err != nil {
		return nil, fmt.Errorf("failed to load face detector: %w", err)
	}
	return det, nil
}

// openGallery opens the configured sample store together with the detector
// used to crop training photos.
func (a *app) openGallery() (*gallery.Gallery, error) {
	if a.gallery != nil {
		return a.gallery, nil
	}

	var store gallery.SampleStore
	switch a.cfg.GalleryBackend {
	case config.GalleryBackendSQLite:
		db, err := database.InitDB(database.SQLiteDSN(a.cfg.DatabasePath))
		if err != nil {
			return nil, err
		}
		a.closers = append(a.closers, func() { db.Close() })
		store = database.NewSampleStore(db)
		log.Printf("gallery: using sqlite sample store in %s", a.cfg.DatabasePath)
	default:
		dirStore, err := media.NewDirSampleStore(a.cfg.GalleryPath)
		if err != nil {
			return nil, err
		}
		store = dirStore
		log.Printf("gallery: using sample directory %s", a.cfg.GalleryPath)
	}

	det, err := a.newDetector()
	if err != nil {
		return nil, err
	}
	a.closers = append(a.closers, det.Close)
	a.detector = det
	a.gallery = gallery.New(store, det)
	return a.gallery, nil
}

func (a *app) newMatcher(g *gallery.Gallery) *services.FaceMatcher {
	return services.NewFaceMatcher(g, a.cfg.MatchThreshold, a.cfg.MatchTopK)
}

// pipelineFactory builds pipelines that share the gallery and recorder but
// each own a cascade detector. recorder may be nil.
func (a *app) pipelineFactory(g *gallery.Gallery, recorder services.Recorder) workers.PipelineFactory {
	return func() (*services.RecognitionPipeline, func(), error) {
		det, err := a.newDetector()
		if err != nil {
			return nil, nil, err
		}
		p := services.NewRecognitionPipeline(det, a.newMatcher(g), a.rotation, a.cfg.FaceMargin)
		if recorder != nil {
			p.WithRecorder(recorder)
		}
		return p, det.Close, nil
	}
}

func (a *app) openMediaProcessor() (*media.Processor, error) {
	store, err := media.NewLocalStorage(a.cfg.MediaStoragePath, map[media.AssetType]string{
		media.AssetTypeUpload:   filepath.Base(a.cfg.UploadsPath),
		media.AssetTypeDetected: filepath.Base(a.cfg.DetectedPath),
		media.AssetTypeDebug:    filepath.Join(filepath.Base(a.cfg.DetectedPath), "debug"),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to initialize media store: %w", err)
	}
	for _, t := range []media.AssetType{media.AssetTypeUpload, media.AssetTypeDetected} {
		if _, err := store.EnsureDir(t); err != nil {
			return nil, err
		}
	}
	return media.NewProcessor(store), nil
}
