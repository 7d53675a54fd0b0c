package detection

import (
	"context"
	"encoding/base64"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/protobuf/types/known/structpb"

	"sentinel-worker-go/internal/models"
	"sentinel-worker-go/internal/services/camera"
)

// The inference server exposes a schemaless service: requests and responses
// are google.protobuf.Struct messages.
const (
	ServiceName  = "sentinel.detector.v1.Detector"
	LoadMethod   = "/" + ServiceName + "/LoadModel"
	DetectMethod = "/" + ServiceName + "/Detect"
)

// ImageEncoder turns frames into the JPEG payload sent to the server
type ImageEncoder interface {
	EncodeJPEG(frame *models.Frame) ([]byte, error)
}

type Option func(*Service)

// WithDialOptions replaces the default insecure transport options
func WithDialOptions(opts ...grpc.DialOption) Option {
	return func(s *Service) { s.dialOpts = opts }
}

func WithLogger(l zerolog.Logger) Option {
	return func(s *Service) { s.logger = l }
}

// Service is the gRPC client of the remote object detector. It implements
// camera.ModelLoader.
type Service struct {
	url      string
	timeout  time.Duration
	encoder  ImageEncoder
	dialOpts []grpc.DialOption
	logger   zerolog.Logger

	mu      sync.RWMutex
	conn    *grpc.ClientConn
	health  healthpb.HealthClient
	healthy atomic.Bool
}

// NewService creates the client. The connection is established lazily, so an
// unavailable server does not fail startup.
func NewService(grpcURL string, timeout time.Duration, encoder ImageEncoder, opts ...Option) (*Service, error) {
	s := &Service{
		url:      grpcURL,
		timeout:  timeout,
		encoder:  encoder,
		dialOpts: []grpc.DialOption{grpc.WithTransportCredentials(insecure.NewCredentials())},
		logger:   log.Logger,
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.timeout <= 0 {
		s.timeout = 5 * time.Second
	}

	s.logger.Info().Str("url", grpcURL).Msg("Initializing detection service client")

	conn, err := grpc.NewClient(grpcURL, s.dialOpts...)
	if err != nil {
		return nil, fmt.Errorf("failed to create detection client for %s: %w", grpcURL, err)
	}
	s.conn = conn
	s.health = healthpb.NewHealthClient(conn)
	return s, nil
}

// Load asks the server to prepare model and returns a detector bound to it
func (s *Service) Load(ctx context.Context, model string, useGPU bool) (camera.ObjectDetector, error) {
	req, err := structpb.NewStruct(map[string]interface{}{
		"model":   model,
		"use_gpu": useGPU,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to build load request: %w", err)
	}

	resp, err := s.invoke(ctx, LoadMethod, req)
	if err != nil {
		return nil, fmt.Errorf("failed to load model %s: %w", model, err)
	}
	if ok := resp.GetFields()["ok"]; ok != nil && !ok.GetBoolValue() {
		return nil, fmt.Errorf("server rejected model %s: %s", model, resp.GetFields()["error"].GetStringValue())
	}

	s.logger.Info().Str("model", model).Bool("gpu", useGPU).Msg("Detection model ready on server")
	return &remoteDetector{svc: s, model: model}, nil
}

func (s *Service) invoke(ctx context.Context, method string, req *structpb.Struct) (*structpb.Struct, error) {
	s.mu.RLock()
	conn := s.conn
	s.mu.RUnlock()
	if conn == nil {
		return nil, fmt.Errorf("detection service is shut down")
	}

	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	resp := &structpb.Struct{}
	if err := conn.Invoke(ctx, method, req, resp); err != nil {
		s.healthy.Store(false)
		return nil, err
	}
	s.healthy.Store(true)
	return resp, nil
}

// HealthCheck queries the standard gRPC health service
func (s *Service) HealthCheck(ctx context.Context) error {
	s.mu.RLock()
	client := s.health
	s.mu.RUnlock()
	if client == nil {
		return fmt.Errorf("detection service is shut down")
	}

	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	resp, err := client.Check(ctx, &healthpb.HealthCheckRequest{Service: ServiceName})
	if err != nil {
		s.healthy.Store(false)
		return fmt.Errorf("detection service health check failed: %w", err)
	}
	if resp.GetStatus() != healthpb.HealthCheckResponse_SERVING {
		s.healthy.Store(false)
		return fmt.Errorf("detection service is %s", resp.GetStatus())
	}
	s.healthy.Store(true)
	return nil
}

func (s *Service) IsHealthy() bool {
	return s.healthy.Load()
}

func (s *Service) Shutdown(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.conn == nil {
		return nil
	}
	s.logger.Info().Msg("Shutting down detection service connection")
	err := s.conn.Close()
	s.conn = nil
	s.health = nil
	return err
}

type remoteDetector struct {
	svc   *Service
	model string
}

func (d *remoteDetector) Infer(ctx context.Context, frame *models.Frame, confidence float64, classes []int) ([]models.Detection, error) {
	if d.svc.encoder == nil {
		return nil, fmt.Errorf("no image encoder configured")
	}
	img, err := d.svc.encoder.EncodeJPEG(frame)
	if err != nil {
		return nil, fmt.Errorf("failed to encode frame: %w", err)
	}

	req, err := buildDetectRequest(d.model, img, frame.Width, frame.Height, confidence, classes)
	if err != nil {
		return nil, err
	}
	resp, err := d.svc.invoke(ctx, DetectMethod, req)
	if err != nil {
		return nil, fmt.Errorf("detection request failed: %w", err)
	}
	return parseDetections(resp)
}

func buildDetectRequest(model string, jpeg []byte, width, height int, confidence float64, classes []int) (*structpb.Struct, error) {
	classList := make([]interface{}, 0, len(classes))
	for _, c := range classes {
		classList = append(classList, c)
	}
	req, err := structpb.NewStruct(map[string]interface{}{
		"model":      model,
		"image_b64":  base64.StdEncoding.EncodeToString(jpeg),
		"width":      width,
		"height":     height,
		"confidence": confidence,
		"classes":    classList,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to build detect request: %w", err)
	}
	return req, nil
}

// parseDetections reads {"detections": [{"bbox": [x1,y1,x2,y2], "confidence",
// "class_id", "label"}]}
func parseDetections(resp *structpb.Struct) ([]models.Detection, error) {
	list := resp.GetFields()["detections"].GetListValue()
	if list == nil {
		return nil, nil
	}

	out := make([]models.Detection, 0, len(list.GetValues()))
	for i, v := range list.GetValues() {
		fields := v.GetStructValue().GetFields()
		if fields == nil {
			return nil, fmt.Errorf("detection %d is not an object", i)
		}
		bbox := fields["bbox"].GetListValue().GetValues()
		if len(bbox) != 4 {
			return nil, fmt.Errorf("detection %d has %d bbox values, want 4", i, len(bbox))
		}
		out = append(out, models.Detection{
			BBox: models.BBox{
				X1: int(bbox[0].GetNumberValue()),
				Y1: int(bbox[1].GetNumberValue()),
				X2: int(bbox[2].GetNumberValue()),
				Y2: int(bbox[3].GetNumberValue()),
			},
			Confidence: float32(fields["confidence"].GetNumberValue()),
			ClassID:    int(fields["class_id"].GetNumberValue()),
			Label:      fields["label"].GetStringValue(),
		})
	}
	return out, nil
}
