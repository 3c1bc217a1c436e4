package types

import (
	"strconv"
	"time"
)

// ClassificationResult is the classifier's verdict for one photo
type ClassificationResult struct {
	RawLabel   string    `json:"predicted_class"`
	Confidence float64   `json:"confidence"`
	Filename   string    `json:"filename,omitempty"`
	Date       string    `json:"fecha,omitempty"`
	Tags       []string  `json:"tags,omitempty"`
	Simulated  bool      `json:"simulated,omitempty"`
	ReceivedAt time.Time `json:"received_at"`
}

// RecyclingMapping routes a material to its bin
type RecyclingMapping struct {
	Key           string `json:"key"`
	DisplayName   string `json:"display_name"`
	BinLabel      string `json:"bin"`
	BinColorToken string `json:"bin_color"`
	Instructions  string `json:"instructions"`
	PointValue    int    `json:"points"`
}

// Recyclable reports whether depositing the item earns points
func (m RecyclingMapping) Recyclable() bool {
	return m.PointValue > 0
}

// SessionPhoto is one successfully classified image of the current session
type SessionPhoto struct {
	Filename       string               `json:"filename"`
	Classification ClassificationResult `json:"classification"`
	Mapping        RecyclingMapping     `json:"mapping"`
	Timestamp      time.Time            `json:"timestamp"`
}

// QuizQuestion is a multiple-choice question about a material
type QuizQuestion struct {
	Text               string   `json:"text"`
	Options            []string `json:"options"`
	CorrectOptionIndex int      `json:"correct_option_index"`
	Explanation        string   `json:"explanation"`
	SourceMaterial     string   `json:"source_material,omitempty"`
}

// QuestionOutcome records the answer given to one question. ChosenIndex is -1
// when the question was left unanswered.
type QuestionOutcome struct {
	ChosenIndex int  `json:"chosen_index"`
	IsCorrect   bool `json:"is_correct"`
}

// QuizResult is the scored quiz
type QuizResult struct {
	PerQuestion  []QuestionOutcome `json:"per_question"`
	CorrectCount int               `json:"correct_count"`
	BonusPoints  int               `json:"bonus_points"`
}

// PointsState is the cached copy of the backend-owned balance
type PointsState struct {
	Balance       int       `json:"balance"`
	LifetimeTotal int       `json:"lifetime_total"`
	FetchedAt     time.Time `json:"fetched_at"`
}

// Reward is an entry of the reward catalog
type Reward struct {
	ID             int    `json:"id"`
	Name           string `json:"name"`
	RequiredPoints int    `json:"required_points"`
	Stock          int    `json:"stock"`
	Partner        string `json:"partner,omitempty"`
	// Stale is set when Stock carries a local adjustment not yet confirmed by a reload
	Stale bool `json:"stale,omitempty"`
}

// RedemptionReceipt confirms a successful redemption
type RedemptionReceipt struct {
	RewardID   int       `json:"reward_id"`
	RewardName string    `json:"reward_name"`
	Message    string    `json:"message"`
	RedeemedAt time.Time `json:"redeemed_at"`
}

// HistoryKind tags a history entry
type HistoryKind string

const (
	HistoryScan       HistoryKind = "escaneo"
	HistoryRedemption HistoryKind = "canje"
	HistoryOther      HistoryKind = "otro"
)

// HistoryEntry is one line of the points ledger
type HistoryEntry struct {
	Kind   HistoryKind `json:"kind"`
	Detail string      `json:"detail"`
	Delta  int         `json:"delta"`
	Date   time.Time   `json:"date"`
}

// Badge renders the signed delta, e.g. "+5" or "-150"
func (h HistoryEntry) Badge() string {
	if h.Delta >= 0 {
		return "+" + strconv.Itoa(h.Delta)
	}
	return strconv.Itoa(h.Delta)
}

// RecyclingRecord is a submitted recycling form
type RecyclingRecord struct {
	ID             string    `json:"id"`
	Item           string    `json:"item"`
	Bin            string    `json:"bin"`
	Points         int       `json:"points"`
	Instructions   string    `json:"instructions"`
	Location       string    `json:"location,omitempty"`
	Notes          string    `json:"notes,omitempty"`
	ImageFilename  string    `json:"imageFilename,omitempty"`
	ImageTimestamp time.Time `json:"imageTimestamp,omitempty"`
	CreatedAt      time.Time `json:"createdAt"`
}

// NoticeLevel is the severity of a user-facing notification
type NoticeLevel string

const (
	NoticeSuccess NoticeLevel = "success"
	NoticeInfo    NoticeLevel = "info"
	NoticeWarning NoticeLevel = "warning"
	NoticeError   NoticeLevel = "error"
)

// Notice is a non-blocking notification shown to the user
type Notice struct {
	Level   NoticeLevel `json:"level"`
	Message string      `json:"message"`
	Time    time.Time   `json:"time"`
}

// Statistics summarises the session's recycling activity
type Statistics struct {
	TotalRecycled  int     `json:"total_recycled"`
	LifetimePoints int     `json:"lifetime_points"`
	CO2AvoidedKg   float64 `json:"co2_avoided_kg"`
	AveragePoints  int     `json:"average_points"`
}

// RawHistoryEntry is a history line as served by the backend. Delta is only
// present on backends that send the structured field.
type RawHistoryEntry struct {
	Action string `json:"accion"`
	Detail string `json:"detalle"`
	Date   string `json:"fecha"`
	Delta  *int   `json:"delta,omitempty"`
}
