package forecasts

import "testing"

func TestValidateIdentifier(t *testing.T) {
	tests := []struct {
		name    string
		column  string
		wantErr bool
	}{
		{"default column", "symbol", false},
		{"underscored column", "stock_symbol", false},
		{"digits after letter", "col2", false},
		{"empty", "", true},
		{"leading digit", "2symbol", true},
		{"uppercase", "Symbol", true},
		{"quote injection", `symbol") DO NOTHING; --`, true},
		{"whitespace", "symbol name", true},
		{"semicolon", "symbol;", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := validateIdentifier(tt.column)
			if (err != nil) != tt.wantErr {
				t.Errorf("validateIdentifier(%q) error = %v, wantErr %v", tt.column, err, tt.wantErr)
			}
		})
	}
}
