package main

import (
	"context"
	"fmt"
	"log"
	"os"
	"path/filepath"

	"github.com/ayusman/memora/internal/ai"
	"github.com/ayusman/memora/internal/app"
	"github.com/ayusman/memora/internal/capture"
	"github.com/ayusman/memora/internal/config"
	"github.com/ayusman/memora/internal/detector"
	"github.com/ayusman/memora/internal/gallery"
	"github.com/ayusman/memora/internal/handoff"
	"github.com/ayusman/memora/internal/match"
	"github.com/ayusman/memora/internal/plugin"
	"github.com/ayusman/memora/internal/store"
)

// components holds everything a command may need, built from the config.
type components struct {
	store    *store.Store
	detector *detector.GoFaceDetector
	gallery  *gallery.Store
	builder  *gallery.Builder
	app      *app.App
}

func openStore(cfg *config.Config) (*store.Store, error) {
	if dir := filepath.Dir(cfg.Database.Path); dir != "." {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, fmt.Errorf("failed to create data directory: %w", err)
		}
	}
	st, err := store.New(cfg.Database.Path)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize store: %w", err)
	}
	return st, nil
}

func openDetector(cfg *config.Config) (*detector.GoFaceDetector, error) {
	return detector.NewGoFaceDetector(detector.Config{
		ModelsDir:     cfg.Models.Dir,
		Scale:         cfg.Recognition.DetectScale,
		MaxEnrollSide: cfg.Models.MaxEnrollSide,
	})
}

// cameraFactory opens cameras at the configured size and frame rate.
func cameraFactory(cc config.CameraConfig) capture.Factory {
	return func(deviceID int) capture.Camera {
		cam := capture.NewCameraWithSize(deviceID, cc.Width, cc.Height)
		if cc.FPS > 0 {
			cam.SetFPS(cc.FPS)
		}
		return cam
	}
}

// build wires the store, detector, gallery and recognition app. When
// requireModels is false a missing model directory is logged and the app
// runs without a detector, so sessions and rebuilds report an error.
func build(ctx context.Context, cfg *config.Config, requireModels bool) (*components, error) {
	st, err := openStore(cfg)
	if err != nil {
		return nil, err
	}
	c := &components{store: st, gallery: gallery.NewStore()}

	det, err := openDetector(cfg)
	switch {
	case err != nil && requireModels:
		st.Close()
		return nil, fmt.Errorf("failed to load face models from %s: %w", cfg.Models.Dir, err)
	case err != nil:
		log.Printf("Face models unavailable, recognition disabled: %v", err)
	default:
		c.detector = det
		c.builder = &gallery.Builder{
			Source:    st.Enrollments(),
			Encoder:   det,
			Store:     c.gallery,
			Cache:     st.GalleryCache(),
			EncoderID: det.ID(),
		}
	}

	gen, err := ai.NewGenerator(ctx, ai.Config{
		Provider:     cfg.Personalization.Provider,
		GeminiAPIKey: cfg.Personalization.GeminiAPIKey,
		OpenAIAPIKey: cfg.Personalization.OpenAIAPIKey,
		Model:        cfg.Personalization.Model,
	})
	if err != nil {
		log.Printf("Conversation provider unavailable, using template starters: %v", err)
		gen = ai.StaticGenerator{}
	}
	personalizer := handoff.NewPersonalizer(st.Members(), gen)
	personalizer.SetTimeout(cfg.Personalization.Timeout)
	personalizer.SetUpdates(st.Updates())

	var bridge handoff.Bridge = personalizer
	if cfg.Plugins.Dir != "" {
		plugins := plugin.NewManager(cfg.Plugins.Dir)
		if err := plugins.Discover(); err != nil {
			log.Printf("Plugin discovery failed: %v", err)
		} else if n := len(plugins.List()); n > 0 {
			log.Printf("Loaded %d plugins from %s", n, cfg.Plugins.Dir)
			bridge = plugin.NewNotifier(personalizer, plugins, plugin.NewExecutor(cfg.Plugins.Timeout))
		}
	}

	appCfg := app.Config{
		DeviceID:           cfg.Camera.Device,
		NewCamera:          cameraFactory(cfg.Camera),
		Gallery:            c.gallery,
		Matcher:            match.NewMatcher(cfg.Recognition.Threshold),
		Bridge:             bridge,
		Sessions:           st.Sessions(),
		Timeout:            cfg.Recognition.SessionTimeout,
		MaxFrames:          cfg.Recognition.MaxFrames,
		FrameInterval:      cfg.Recognition.FrameInterval,
		MaxCaptureFailures: cfg.Recognition.MaxCaptureFailures,
		Annotate:           cfg.Recognition.Annotate,
	}
	if c.builder != nil {
		appCfg.Builder = c.builder
	}
	if c.detector != nil {
		appCfg.Detector = c.detector
	}
	c.app = app.New(appCfg)

	log.Printf("Using %s conversation starters", gen.Name())
	return c, nil
}

// Close releases the app, detector and store.
func (c *components) Close() {
	c.app.Close()
	if err := c.store.Close(); err != nil {
		log.Printf("Error closing store: %v", err)
	}
}

// loadGallery builds the initial gallery. An empty enrollment set is not
// an error here; sessions report it when they run.
func (c *components) loadGallery(ctx context.Context) {
	if c.builder == nil {
		return
	}
	report, err := c.app.RebuildGallery(ctx)
	if err != nil {
		log.Printf("Initial gallery build: %v", err)
		return
	}
	log.Printf("Gallery v%d ready with %d entries (cache: %v)", report.Version, report.Entries, report.FromCache)
}
