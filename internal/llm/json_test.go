package llm

import "testing"

func TestParseFencedJSON(t *testing.T) {
	tests := []struct {
		name    string
		raw     string
		wantErr bool
	}{
		{"plain json", `{"type": "menu"}`, false},
		{"json fence", "```json\n{\"type\": \"menu\"}\n```", false},
		{"bare fence", "```\n{\"type\": \"menu\"}\n```", false},
		{"surrounding whitespace", "  {\"type\": \"menu\"}  \n", false},
		{"prose, not json", "The type is menu.", true},
		{"empty", "", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var parsed struct {
				Type string `json:"type"`
			}
			err := parseFencedJSON(tt.raw, &parsed)
			if (err != nil) != tt.wantErr {
				t.Fatalf("parseFencedJSON(%q) error = %v, wantErr %v", tt.raw, err, tt.wantErr)
			}
			if !tt.wantErr && parsed.Type != "menu" {
				t.Errorf("parsed type = %q, want menu", parsed.Type)
			}
		})
	}
}

func TestIsFallbackMenu(t *testing.T) {
	tests := []struct {
		name string
		menu map[string]string
		want bool
	}{
		{"exact placeholder", map[string]string{"1": "Sales", "2": "Support", "3": "Billing"}, true},
		{"different labels", map[string]string{"1": "Reservations", "2": "Baggage"}, false},
		{"subset", map[string]string{"1": "Sales"}, false},
		{"superset", map[string]string{"1": "Sales", "2": "Support", "3": "Billing", "4": "Agent"}, false},
		{"empty", map[string]string{}, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := IsFallbackMenu(tt.menu); got != tt.want {
				t.Errorf("IsFallbackMenu(%v) = %v, want %v", tt.menu, got, tt.want)
			}
		})
	}
}
