package service

import (
	"context"
	"errors"
	"fmt"
	"log"
	"regexp"
	"strings"

	"parking_enforcement/internal/domain"

	"github.com/aws/aws-sdk-go-v2/service/rekognition"
	"github.com/aws/aws-sdk-go-v2/service/rekognition/types"
)

var ErrNoPlateDetected = errors.New("no plate-shaped text detected in image")

// UK-style registration marks plus a loose fallback for older formats.
var plateRegex = regexp.MustCompile(`^[A-Z]{2}[0-9]{2}[A-Z]{3}$|^[A-Z][0-9]{1,3}[A-Z]{3}$|^[A-Z]{3}[0-9]{1,3}[A-Z]?$`)

// PlateValidationResult reports a second-opinion plate read against the VRM
// the camera originally claimed.
type PlateValidationResult struct {
	MovementID    int     `json:"movement_id"`
	ClaimedVRM    string  `json:"claimed_vrm"`
	DetectedVRM   string  `json:"detected_vrm"`
	Confidence    float32 `json:"confidence"`
	Match         bool    `json:"match"`
	FlaggedReview bool    `json:"flagged_review"`
}

// PlateValidationService re-reads a movement's plate image with Rekognition
// and flags the movement for review when the reads disagree.
type PlateValidationService struct {
	rekognitionClient *rekognition.Client
	corrections       *CorrectionService
	minConfidence     float32
}

func NewPlateValidationService(rekClient *rekognition.Client, corrections *CorrectionService) *PlateValidationService {
	return &PlateValidationService{
		rekognitionClient: rekClient,
		corrections:       corrections,
		minConfidence:     80.0,
	}
}

// DetectPlate extracts the highest-confidence plate-shaped text line from an
// image.
func (s *PlateValidationService) DetectPlate(ctx context.Context, imageBytes []byte) (string, float32, error) {
	if s.rekognitionClient == nil {
		return "", 0, errors.New("rekognition client is not configured")
	}

	input := &rekognition.DetectTextInput{
		Image: &types.Image{Bytes: imageBytes},
	}
	result, err := s.rekognitionClient.DetectText(ctx, input)
	if err != nil {
		return "", 0, fmt.Errorf("rekognition DetectText: %w", err)
	}

	var bestPlate string
	var bestConfidence float32
	for _, detection := range result.TextDetections {
		if detection.Type != types.TextTypesLine && detection.Type != types.TextTypesWord {
			continue
		}
		if detection.DetectedText == nil || detection.Confidence == nil {
			continue
		}
		candidate := domain.NormalizeVRM(*detection.DetectedText)
		if !plateRegex.MatchString(candidate) {
			continue
		}
		if *detection.Confidence > bestConfidence {
			bestConfidence = *detection.Confidence
			bestPlate = candidate
		}
	}

	if bestPlate == "" {
		return "", 0, ErrNoPlateDetected
	}
	return bestPlate, bestConfidence, nil
}

// ValidateMovement cross-checks an uploaded image against the movement's
// recorded VRM. A confident mismatch flags the movement for review; a
// low-confidence read is inconclusive and changes nothing.
func (s *PlateValidationService) ValidateMovement(ctx context.Context, movementID int, imageBytes []byte, actor string) (*PlateValidationResult, error) {
	movement, err := s.corrections.movementRepo.FindByID(ctx, movementID)
	if err != nil {
		return nil, err
	}

	detected, confidence, err := s.DetectPlate(ctx, imageBytes)
	if err != nil {
		return nil, err
	}

	result := &PlateValidationResult{
		MovementID:  movement.ID,
		ClaimedVRM:  movement.VRM,
		DetectedVRM: detected,
		Confidence:  confidence,
		Match:       detected == movement.VRM,
	}

	if !result.Match && confidence >= s.minConfidence {
		note := fmt.Sprintf("plate re-read %s (%.1f%%) disagrees with recorded %s", detected, confidence, movement.VRM)
		if _, err := s.corrections.FlagForReview(ctx, movement.ID, actor, note); err != nil {
			return nil, err
		}
		result.FlaggedReview = true
		log.Printf("Movement %d plate mismatch: recorded %s, detected %s (%.1f%%)",
			movement.ID, movement.VRM, detected, confidence)
	} else if !result.Match {
		log.Printf("Movement %d plate re-read inconclusive: %s at %.1f%% (threshold %.1f%%)",
			movement.ID, strings.TrimSpace(detected), confidence, s.minConfidence)
	}
	return result, nil
}
