package policy

import "time"

// Default model identifiers.
const (
	DefaultFastModel   = "claude-haiku-4-5-20251001"
	DefaultMidModel    = "claude-sonnet-4-5-20250929"
	DefaultDeepModel   = "claude-opus-4-6"
	DefaultOpenAIModel = "gpt-4o"
)

// Default returns the built-in policy. Level bands follow 0.2 steps and the
// adjustment factor is clamp(1 - 0.5*risk + 0.3*(confidence - 0.5), 0.3, 1).
func Default() *Policy {
	return &Policy{
		Version: "builtin-1",
		Complexity: ComplexityPolicy{
			LengthWeight:          0.20,
			LexicalWeight:         0.15,
			NumericWeight:         0.25,
			ForwardLookingWeight:  0.20,
			VolatilityWeight:      0.20,
			LengthSaturationWords: 800,
			NumericSaturation:     0.25,
			ForwardSaturation:     1.0,
		},
		Routing: RoutingPolicy{
			LowThreshold:   0.35,
			HighThreshold:  0.70,
			FastModel:      DefaultFastModel,
			DeepModel:      DefaultDeepModel,
			EnsembleModels: []string{DefaultFastModel, DefaultMidModel, DefaultDeepModel},
		},
		Models: map[string]ModelPolicy{
			DefaultFastModel:   {Provider: ProviderAnthropic, Weight: 0.8, Timeout: 20 * time.Second, MaxTokens: 1024},
			DefaultMidModel:    {Provider: ProviderAnthropic, Weight: 1.0, Timeout: 20 * time.Second, MaxTokens: 2048},
			DefaultDeepModel:   {Provider: ProviderAnthropic, Weight: 1.2, Timeout: 30 * time.Second, MaxTokens: 2048},
			DefaultOpenAIModel: {Provider: ProviderOpenAI, Weight: 1.0, Timeout: 20 * time.Second, MaxTokens: 1024},
		},
		Ensemble: EnsemblePolicy{
			DefaultWeight:         1.0,
			DefaultTimeout:        20 * time.Second,
			MaxAttempts:           3,
			InitialBackoff:        250 * time.Millisecond,
			MaxBackoff:            2 * time.Second,
			Quorum:                0,
			ValueTolerance:        0.01,
			DisagreementThreshold: 0.30,
			DisagreementPenalty:   0.15,
			FailurePenalty:        0.50,
			BreakerThreshold:      5,
			BreakerReset:          30 * time.Second,
		},
		FACT: FACTPolicy{
			MathematicalWeight:   0.50,
			LogicalWeight:        0.25,
			CriticalWeight:       0.25,
			TolerancePP:          0.5,
			CriticalDeviationPP:  10,
			NoNumbersConfidence:  0.6,
			NoRelationConfidence: 0.7,
			FallacyPenalty:       0.10,
			MaxFallacyPenalty:    0.30,
			ReferenceTolerance:   0.02,
			UngroundedConfidence: 0.5,
			MatchedConfidence:    0.95,

			FailedConfidence:         0.2,
			CriticalFailedConfidence: 0.05,
			AmbiguityPenalty:         0.1,
			BreachPenalty:            0.2,
		},
		GOALIE: GOALIEPolicy{
			BaseScores: map[string]float64{
				"general":     0.20,
				"competitive": 0.30,
				"financial":   0.35,
				"valuation":   0.40,
				"market":      0.45,
				"regulatory":  0.50,
			},
			Keywords: map[string][]string{
				"financial": {
					"revenue", "earnings", "eps", "margin", "profit", "net income",
					"cash flow", "guidance", "ebitda", "sales", "expenses", "debt",
				},
				"market": {
					"stock price", "share price", "shares will", "rally", "sell-off",
					"buy", "sell", "market timing", "volatility", "index", "bull", "bear",
				},
				"valuation": {
					"valuation", "price target", "fair value", "p/e", "multiple",
					"undervalued", "overvalued", "intrinsic value", "dcf",
				},
				"regulatory": {
					"sec", "regulator", "regulatory", "compliance", "capital ratio",
					"investigation", "settlement", "fine", "lawsuit", "filing deadline",
				},
				"competitive": {
					"market share", "competitor", "competition", "pricing pressure",
					"new entrant", "moat", "disruption",
				},
			},
			Factors: FactorPolicy{
				Uncertainty:              0.15,
				ThinHistory:              0.10,
				MinHistoryDepth:          4,
				Volatility:               0.10,
				VolatilityThreshold:      0.5,
				Disagreement:             0.15,
				ForwardLooking:           0.10,
				FACTFailure:              0.25,
				FACTSeverity:             0.10,
				StrongAgreement:          0.05,
				StrongAgreementThreshold: 0.9,
				HighFACTConfidence:       0.05,
				HighFACTConfidenceMin:    0.85,
			},
			LevelBands: []Band{
				{Name: "minimal", Min: 0, Max: 0.2},
				{Name: "low", Min: 0.2, Max: 0.4},
				{Name: "moderate", Min: 0.4, Max: 0.6},
				{Name: "high", Min: 0.6, Max: 0.8},
				{Name: "critical", Min: 0.8, Max: 1.0},
			},
			ReliabilityBands: []Band{
				{Name: "unreliable", Min: 0, Max: 0.5},
				{Name: "uncertain", Min: 0.5, Max: 0.8},
				{Name: "reliable", Min: 0.8, Max: 1.0},
			},
			Blend: BlendPolicy{
				AgreementWeight: 0.4,
				FACTWeight:      0.4,
				ModelWeight:     0.2,
				VariancePenalty: 0.5,
			},
			Adjustment: AdjustmentPolicy{
				Base:           1.0,
				RiskCoef:       0.5,
				ConfidenceCoef: 0.3,
				Pivot:          0.5,
				Min:            0.3,
				Max:            1.0,
			},
		},
		Drift: DriftThresholds{
			MaxAccuracyDrop:    0.05,
			MaxF1Drop:          0.05,
			MaxCalibrationDrop: 0.10,
			MinAccuracy:        0.70,
			MinCalibration:     0.60,
			MinSamples:         30,
			CalibrationBins:    10,
		},
	}
}
