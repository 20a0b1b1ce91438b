package postgres

import "testing"

func TestSetConnStr(t *testing.T) {
	cases := []struct {
		conf configType
		want string
	}{
		{
			configType{User: "postgres", Passwd: "secret", Host: "db", Port: "5433", DBName: "rooms"},
			"postgres://postgres:secret@db:5433/rooms?sslmode=disable&connect_timeout=10",
		},
		{
			configType{Host: "localhost", DBName: "vidroom"},
			"postgres://localhost/vidroom?sslmode=disable&connect_timeout=10",
		},
	}
	for _, tc := range cases {
		if got := setConnStr(tc.conf); got != tc.want {
			t.Errorf("setConnStr(%+v) = %q, want %q", tc.conf, got, tc.want)
		}
	}
}
