package retriever

import (
	"reflect"
	"testing"
)

// --- Tokenize ---

func TestTokenize_DropsStopwords(t *testing.T) {
	got := Tokenize("What did Layla say about the mountains")
	want := []string{"layla", "mountains"}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("expected %v, got %v", want, got)
	}
}

func TestTokenize_KeepsDigitTokens(t *testing.T) {
	got := Tokenize("meeting in room 42")
	want := []string{"meeting", "room", "42"}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("expected %v, got %v", want, got)
	}
}

func TestTokenize_DropsShortTokens(t *testing.T) {
	if got := Tokenize("go to it"); len(got) != 0 {
		t.Errorf("expected no tokens, got %v", got)
	}
}

func TestTokenize_Lowercases(t *testing.T) {
	got := Tokenize("BUDGET Report")
	want := []string{"budget", "report"}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("expected %v, got %v", want, got)
	}
}

// --- MatchUserNames ---

func TestMatchUserNames(t *testing.T) {
	names := []string{"Layla Kim", "Victor Reyes", "Amina Diallo"}
	tests := []struct {
		name     string
		question string
		want     []string
	}{
		{"full name", "What did Layla Kim say about the move?", []string{"Layla Kim"}},
		{"first name only", "where is layla moving", []string{"Layla Kim"}},
		{"case insensitive", "Did VICTOR finish the report?", []string{"Victor Reyes"}},
		{"one edit away", "What did Laila say about hiking?", []string{"Layla Kim"}},
		{"several users", "Did Layla or Victor discuss the plan?", []string{"Layla Kim", "Victor Reyes"}},
		{"no user", "What is the weather like today?", nil},
		{"empty question", "", nil},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := MatchUserNames(tt.question, names)
			if !reflect.DeepEqual(got, tt.want) {
				t.Errorf("expected %v, got %v", tt.want, got)
			}
		})
	}
}

func TestMatchUserNames_ShortNameTokensNotFuzzed(t *testing.T) {
	// "kin" is one edit from "Kim", but three-rune name words only match
	// exactly.
	if got := MatchUserNames("what about kin", []string{"Layla Kim"}); len(got) != 0 {
		t.Errorf("expected no match, got %v", got)
	}
	if got := MatchUserNames("ask kim directly", []string{"Layla Kim"}); len(got) != 1 {
		t.Errorf("expected exact short-token match, got %v", got)
	}
}

func TestMatchUserNames_PreservesCorpusOrder(t *testing.T) {
	names := []string{"Victor Reyes", "Layla Kim"}
	got := MatchUserNames("layla and victor", names)
	want := []string{"Victor Reyes", "Layla Kim"}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("expected corpus order %v, got %v", want, got)
	}
}

// --- rankAndClip ---

func TestRankAndClip_TiesKeepFetchOrder(t *testing.T) {
	cands := []candidate{{index: 2, score: 0.5}, {index: 0, score: 0.5}, {index: 1, score: 0.5}}
	got := rankAndClip(cands, 2)
	// Equal scores rank by fetch order, so the earliest two survive.
	if len(got) != 2 || got[0].index != 0 || got[1].index != 1 {
		t.Errorf("expected indices [0 1], got %v", got)
	}
}

func TestRankAndClip_ScoreBeatsRecency(t *testing.T) {
	cands := []candidate{{index: 0, score: 0.9}, {index: 1, score: 0.2}, {index: 2, score: 0.5}}
	got := rankAndClip(cands, 2)
	if len(got) != 2 || got[0].index != 0 || got[1].index != 2 {
		t.Errorf("expected indices [0 2], got %v", got)
	}
}

func TestRankAndClip_OutputChronological(t *testing.T) {
	cands := []candidate{{index: 5, score: 0.6}, {index: 1, score: 0.9}, {index: 3, score: 0.7}}
	got := rankAndClip(cands, 10)
	for i := 1; i < len(got); i++ {
		if got[i-1].index >= got[i].index {
			t.Fatalf("result not in fetch order: %v", got)
		}
	}
}
