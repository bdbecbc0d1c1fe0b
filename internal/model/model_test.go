package model

import (
	"testing"
	"time"
)

func TestParseClock(t *testing.T) {
	tests := []struct {
		in      string
		want    Clock
		wantErr bool
	}{
		{"00:00", Clock{0, 0}, false},
		{"9:05", Clock{9, 5}, false},
		{"23:59", Clock{23, 59}, false},
		{"24:00", Clock{}, true},
		{"12:60", Clock{}, true},
		{"54:43", Clock{}, true},
		{"bad", Clock{}, true},
		{"", Clock{}, true},
		{"07:30xyz", Clock{}, true},
		{"x07:30", Clock{}, true},
		{"07:30:00", Clock{}, true},
		{"0730", Clock{}, true},
	}
	for _, tt := range tests {
		got, err := ParseClock(tt.in)
		if (err != nil) != tt.wantErr {
			t.Errorf("ParseClock(%q) err = %v, wantErr %v", tt.in, err, tt.wantErr)
			continue
		}
		if !tt.wantErr && got != tt.want {
			t.Errorf("ParseClock(%q) = %v, want %v", tt.in, got, tt.want)
		}
	}
}

func TestClockString(t *testing.T) {
	if got := (Clock{Hour: 9, Minute: 5}).String(); got != "09:05" {
		t.Errorf("String() = %q, want %q", got, "09:05")
	}
}

func TestClockNext(t *testing.T) {
	now := time.Date(2021, 11, 20, 10, 30, 15, 0, time.UTC)

	ahead := Clock{Hour: 14, Minute: 0}.Next(now)
	if want := time.Date(2021, 11, 20, 14, 0, 0, 0, time.UTC); !ahead.Equal(want) {
		t.Errorf("future wall time: got %v, want %v", ahead, want)
	}

	// A time already past today rolls to tomorrow.
	past := Clock{Hour: 8, Minute: 0}.Next(now)
	if want := time.Date(2021, 11, 21, 8, 0, 0, 0, time.UTC); !past.Equal(want) {
		t.Errorf("past wall time: got %v, want %v", past, want)
	}

	// Exactly now also rolls forward: seconds are already past :00.
	same := Clock{Hour: 10, Minute: 30}.Next(now)
	if want := time.Date(2021, 11, 21, 10, 30, 0, 0, time.UTC); !same.Equal(want) {
		t.Errorf("current minute: got %v, want %v", same, want)
	}
}

func TestTargetsDescribe(t *testing.T) {
	tests := []struct {
		targets Targets
		want    string
	}{
		{Targets{CovidData: true, News: true}, "COVID data and news"},
		{Targets{CovidData: true}, "COVID data"},
		{Targets{News: true}, "news"},
		{Targets{}, "nothing"},
	}
	for _, tt := range tests {
		if got := tt.targets.Describe(); got != tt.want {
			t.Errorf("Describe(%+v) = %q, want %q", tt.targets, got, tt.want)
		}
	}
}

func TestStatValueDisplay(t *testing.T) {
	if got := Stat(7019).Display(); got != "7019" {
		t.Errorf("Display() = %q, want %q", got, "7019")
	}
	if got := (StatValue{}).Display(); got != "N/A" {
		t.Errorf("missing value Display() = %q, want %q", got, "N/A")
	}
}

func TestUpdateTitle(t *testing.T) {
	u := Update{Name: "morning", At: Clock{Hour: 7, Minute: 30}}
	if got := u.Title(); got != "morning - 07:30" {
		t.Errorf("Title() = %q", got)
	}
}
