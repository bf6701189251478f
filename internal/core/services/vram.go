package services

import "github.com/custodia-labs/lorastudio/internal/core/domain"

// VRAM heuristic constants.
const (
	vramBaseGB            = 4.2
	vramHalfPrecision     = 0.78
	vramFourBit           = 0.7
	vramRecommendationOK  = "config_safe"
	vramRecommendationBad = "Reduce sequence length, enable 4-bit, lower effective batch, or use cloud burst."
)

// estimateVRAM applies the closed-form admission heuristic. It reads
// no hardware state.
func estimateVRAM(cfg domain.TrainingConfig, baseModelID string, safeLimitGB float64) domain.VRAMEstimate {
	seqFactor := float64(cfg.SequenceLength) / 1024
	rankFactor := float64(cfg.LoRARank) / 16
	batchFactor := float64(cfg.EffectiveBatchSize()) / 8

	precision := 1.0
	if cfg.Precision == "bf16" || cfg.Precision == "fp16" {
		precision = vramHalfPrecision
	}
	quant := 1.0
	if cfg.Use4Bit {
		quant = vramFourBit
	}

	estimate := vramBaseGB * seqFactor * (0.7 + 0.3*rankFactor) * (0.6 + 0.4*batchFactor) * precision * quant
	willFit := estimate <= safeLimitGB

	recommendation := vramRecommendationOK
	if !willFit {
		recommendation = vramRecommendationBad
	}
	return domain.VRAMEstimate{
		BaseModelID:    baseModelID,
		EstimatedGB:    round(estimate, 2),
		SafeLimitGB:    round(safeLimitGB, 2),
		WillFit:        willFit,
		Recommendation: recommendation,
	}
}
