package rules

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/oasis-extract/internal/model"
)

func TestClassify_Items(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name         string
		transcript   string
		key          model.ItemKey
		wantValue    model.Code
		wantEvidence string
	}{
		{
			name:         "grooming dependent",
			transcript:   "Patient depends entirely on caregiver for grooming tasks.",
			key:          model.M1800,
			wantValue:    "3",
			wantEvidence: "depends entirely on caregiver for grooming",
		},
		{
			name:         "grooming assist",
			transcript:   "She needs help brushing her hair each morning.",
			key:          model.M1800,
			wantValue:    "2",
			wantEvidence: "help brushing her hair",
		},
		{
			name:         "grooming after setup",
			transcript:   "Grooming is completed after setup by daughter.",
			key:          model.M1800,
			wantValue:    "1",
			wantEvidence: "grooming is completed after setup",
		},
		{
			name:         "grooming independent",
			transcript:   "He manages grooming independently.",
			key:          model.M1800,
			wantValue:    "0",
			wantEvidence: "grooming independently",
		},
		{
			name:         "upper dressing dependent",
			transcript:   "For upper body dressing she is totally dependent.",
			key:          model.M1810,
			wantValue:    "3",
			wantEvidence: "upper body dressing she is totally dependent",
		},
		{
			name:         "upper dressing needs help to put on",
			transcript:   "Upper body: needs assistance to put on his shirt.",
			key:          model.M1810,
			wantValue:    "2",
			wantEvidence: "upper body: needs assistance to put on",
		},
		{
			name:         "upper dressing laid out",
			transcript:   "Upper garments must be laid out for her.",
			key:          model.M1810,
			wantValue:    "1",
			wantEvidence: "upper garments must be laid out",
		},
		{
			name:         "upper dressing unaided",
			transcript:   "She can get clothes and dress without assistance.",
			key:          model.M1810,
			wantValue:    "0",
			wantEvidence: "can get clothes and dress without assistance",
		},
		{
			name:         "lower dressing socks",
			transcript:   "Requires partial assistance with socks and shoes.",
			key:          model.M1820,
			wantValue:    "2",
			wantEvidence: "partial assistance with socks and shoes",
		},
		{
			name:         "lower dressing independent",
			transcript:   "Lower body dressing done independently.",
			key:          model.M1820,
			wantValue:    "0",
			wantEvidence: "lower body dressing done independently",
		},
		{
			name:         "bathed by another",
			transcript:   "She is bathed entirely by another person.",
			key:          model.M1830,
			wantValue:    "6",
			wantEvidence: "bathed entirely by another person",
		},
		{
			name:         "sink seated with help for back",
			transcript:   "She bathes at the sink seated in a chair and needs help with her back.",
			key:          model.M1830,
			wantValue:    "5",
			wantEvidence: "needs help with her back",
		},
		{
			name:         "sink seated unaided",
			transcript:   "She bathes at the sink seated in a chair.",
			key:          model.M1830,
			wantValue:    "4",
			wantEvidence: "bathes at the sink seated in a chair",
		},
		{
			name:         "bathing presence throughout",
			transcript:   "Bathing requires a helper's presence throughout.",
			key:          model.M1830,
			wantValue:    "3",
			wantEvidence: "presence throughout",
		},
		{
			name:         "bathing contact guard",
			transcript:   "Contact guard needed to step in and out of the tub.",
			key:          model.M1830,
			wantValue:    "2",
			wantEvidence: "contact guard needed to step in and out",
		},
		{
			name:         "shower with devices",
			transcript:   "Patient bathes independently in the shower using grab bars.",
			key:          model.M1830,
			wantValue:    "1",
			wantEvidence: "bathes independently in the shower using grab bars",
		},
		{
			name:         "shower unaided",
			transcript:   "He bathes independently in shower.",
			key:          model.M1830,
			wantValue:    "0",
			wantEvidence: "bathes independently in shower",
		},
		{
			name:         "toilet dependent",
			transcript:   "He is totally dependent for toilet transfers.",
			key:          model.M1840,
			wantValue:    "4",
			wantEvidence: "totally dependent for toilet transfers",
		},
		{
			name:         "bedpan",
			transcript:   "Uses a urinal independently at night.",
			key:          model.M1840,
			wantValue:    "3",
			wantEvidence: "urinal independently",
		},
		{
			name:         "bedside commode",
			transcript:   "Uses a bedside commode.",
			key:          model.M1840,
			wantValue:    "2",
			wantEvidence: "bedside commode",
		},
		{
			name:         "toilet supervised",
			transcript:   "She is supervised for toilet transfers.",
			key:          model.M1840,
			wantValue:    "1",
			wantEvidence: "supervised for toilet transfers",
		},
		{
			name:         "toilet independent",
			transcript:   "Toilet transfers are independent.",
			key:          model.M1840,
			wantValue:    "0",
			wantEvidence: "toilet transfers are independent",
		},
		{
			name:         "bedfast cannot turn",
			transcript:   "He is bedfast, unable to transfer and unable to turn.",
			key:          model.M1850,
			wantValue:    "5",
			wantEvidence: "bedfast, unable to transfer and unable to turn",
		},
		{
			name:         "bedfast can turn",
			transcript:   "She is bedfast but can turn side to side.",
			key:          model.M1850,
			wantValue:    "4",
			wantEvidence: "bedfast but can turn",
		},
		{
			name:         "bears weight and pivots",
			transcript:   "Able to bear weight and pivot but cannot transfer alone.",
			key:          model.M1850,
			wantValue:    "2",
			wantEvidence: "bear weight and pivot but cannot transfer",
		},
		{
			name:         "independent transfer",
			transcript:   "Moves independently from bed to chair.",
			key:          model.M1850,
			wantValue:    "0",
			wantEvidence: "independently from bed to chair",
		},
		{
			name:         "chairfast unable to wheel",
			transcript:   "Chairfast and unable to wheel self.",
			key:          model.M1860,
			wantValue:    "5",
			wantEvidence: "chairfast and unable to wheel self",
		},
		{
			name:         "wheels self independently",
			transcript:   "Is able to wheel self independently.",
			key:          model.M1860,
			wantValue:    "4",
			wantEvidence: "able to wheel self independently",
		},
		{
			name:         "supervision at all times",
			transcript:   "Walks only with supervision at all times.",
			key:          model.M1860,
			wantValue:    "3",
			wantEvidence: "walks only with supervision at all times",
		},
		{
			name:         "rolling walker",
			transcript:   "Uses a rolling walker in the home.",
			key:          model.M1860,
			wantValue:    "2",
			wantEvidence: "rolling walker",
		},
		{
			name:         "cane",
			transcript:   "Walks with a cane outdoors.",
			key:          model.M1860,
			wantValue:    "1",
			wantEvidence: "cane",
		},
		{
			name:         "walks independently",
			transcript:   "He is independent and walks without a device.",
			key:          model.M1860,
			wantValue:    "0",
			wantEvidence: "independent and walk",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Classify(tt.transcript).Get(tt.key)
			assert.Equal(t, tt.wantValue, got.Value)
			assert.Equal(t, tt.wantEvidence, got.Evidence)
		})
	}
}

func TestClassify_DependentGrooming(t *testing.T) {
	t.Parallel()

	got := Classify("The patient depends entirely on caregiver for grooming tasks.")
	assert.Equal(t, model.Code("3"), got.M1800.Value)
	assert.Contains(t, got.M1800.Evidence, "depends entirely")
	assert.Contains(t, got.M1800.Evidence, "groom")
}

func TestClassify_BedfastBeatsWalker(t *testing.T) {
	t.Parallel()

	got := Classify("Patient is bedfast. A walker is kept in the room.")
	assert.Equal(t, model.Code("6"), got.M1860.Value)
	assert.Equal(t, "bedfast", got.M1860.Evidence)
}

func TestClassify_WalkerBeatsCane(t *testing.T) {
	t.Parallel()

	got := Classify("Switched from a cane to a rolling walker last month.")
	assert.Equal(t, model.Code("2"), got.M1860.Value)
}

func TestClassify_CaseAndCompatibilityFolding(t *testing.T) {
	t.Parallel()

	got := Classify("Patient DEPENDS ENTIRELY on caregiver for GROOMING.")
	assert.Equal(t, model.Code("3"), got.M1800.Value)
	assert.Equal(t, "depends entirely on caregiver for grooming", got.M1800.Evidence)

	// Fullwidth letters fold to ASCII under NFKC.
	got = Classify("Uses a ｗａｌｋｅｒ.")
	assert.Equal(t, model.Code("2"), got.M1860.Value)
}

func TestClassify_EmptyTranscript(t *testing.T) {
	t.Parallel()

	got := Classify("")
	for _, k := range model.ItemKeys {
		assert.Equal(t, model.Unknown, got.Get(k).Value, k)
		assert.Empty(t, got.Get(k).Evidence, k)
	}
	require.NotNil(t, got.Confidence)
	assert.InDelta(t, 0.0, *got.Confidence, 1e-9)
}

func TestClassify_Confidence(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name       string
		transcript string
		want       float64
	}{
		{"one item", "Uses a bedside commode.", 0.14},
		{"two items", "Uses a bedside commode. Walks with a cane.", 0.29},
		{
			"all items",
			"Depends entirely on caregiver for grooming. Upper body dressing totally dependent. " +
				"Lower body dressing totally dependent. Bathed entirely by another person. " +
				"Totally dependent for toilet transfers. Bedfast, unable to transfer and unable to turn.",
			1.0,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Classify(tt.transcript)
			require.NotNil(t, got.Confidence)
			assert.InDelta(t, tt.want, *got.Confidence, 1e-9)
		})
	}
}

func TestClassify_Deterministic(t *testing.T) {
	t.Parallel()

	transcript := "She bathes at the sink seated in a chair and needs help with her back. Uses a rolling walker."
	first := Classify(transcript)
	for i := 0; i < 10; i++ {
		assert.Equal(t, first, Classify(transcript))
	}
}

func TestClassify_AlwaysValid(t *testing.T) {
	t.Parallel()

	for _, transcript := range []string{
		"",
		"nothing clinical here",
		"bedfast bedfast bedfast walker cane crutches",
		"upper lower laid out handed independent without assistance",
	} {
		require.NoError(t, Classify(transcript).Validate(), transcript)
	}
}
