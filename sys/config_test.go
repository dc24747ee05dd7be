package sys

import "testing"

func TestConfigValidate(t *testing.T) {
	tests := []struct {
		name    string
		cfg     Config
		wantErr bool
	}{
		{"missing token", Config{}, true},
		{"token only", Config{Token: "abc"}, false},
		{"valid guild id", Config{Token: "abc", GuildID: "123456789012345678"}, false},
		{"guild id too short", Config{Token: "abc", GuildID: "12345"}, true},
		{"guild id too long", Config{Token: "abc", GuildID: "123456789012345678901"}, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.cfg.Validate()
			if (err != nil) != tt.wantErr {
				t.Errorf("Validate() = %v, wantErr %t", err, tt.wantErr)
			}
		})
	}
}
