package replication

import (
	"errors"
	"strings"
	"testing"
	"time"
)

func TestDecodeState_Text(t *testing.T) {
	body := "#Mon Jan 01 00:01:02 UTC 2024\n" +
		"sequenceNumber=6000123\n" +
		"txnMaxQueried=123456\n" +
		"timestamp=2024-01-01T00\\:01\\:02Z\n"

	st, err := DecodeState(strings.NewReader(body), EncodingText)
	if err != nil {
		t.Fatalf("DecodeState failed: %v", err)
	}
	if st.Seqno != 6000123 {
		t.Errorf("Seqno = %d, want 6000123", st.Seqno)
	}
	want := time.Date(2024, 1, 1, 0, 1, 2, 0, time.UTC)
	if !st.Timestamp.Equal(want) {
		t.Errorf("Timestamp = %v, want %v", st.Timestamp, want)
	}
	if st.Timestamp.Location() != time.UTC {
		t.Errorf("Timestamp location = %v, want UTC", st.Timestamp.Location())
	}
}

func TestDecodeState_TextOffsetNormalizedToUTC(t *testing.T) {
	body := "sequenceNumber=1\ntimestamp=2024-01-01T02:00:00+02:00\n"

	st, err := DecodeState(strings.NewReader(body), EncodingText)
	if err != nil {
		t.Fatalf("DecodeState failed: %v", err)
	}
	want := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	if !st.Timestamp.Equal(want) || st.Timestamp.Location() != time.UTC {
		t.Errorf("Timestamp = %v, want %v", st.Timestamp, want)
	}
}

func TestDecodeState_TextRFC2822(t *testing.T) {
	for _, ts := range []string{
		"Mon, 01 Jan 2024 00:00:00 +0000",
		"Mon\\, 01 Jan 2024 00\\:00\\:00 GMT",
		"Sun, 31 Dec 2023 19:00:00 EST",
	} {
		t.Run(ts, func(t *testing.T) {
			st, err := DecodeState(strings.NewReader("sequenceNumber=7\ntimestamp="+ts+"\n"), EncodingText)
			if err != nil {
				t.Fatalf("DecodeState failed: %v", err)
			}
			want := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
			if !st.Timestamp.Equal(want) || st.Timestamp.Location() != time.UTC {
				t.Errorf("Timestamp = %v, want %v", st.Timestamp, want)
			}
		})
	}
}

func TestDecodeState_Structured(t *testing.T) {
	tests := []struct {
		name      string
		body      string
		wantSeqno uint64
		wantTime  time.Time
	}{
		{
			name:      "osmdbt layout",
			body:      "---\nlast_run: 2024-03-05 10:11:12.000000000 +00:00\nsequence: 5912345\n",
			wantSeqno: 5912345,
			wantTime:  time.Date(2024, 3, 5, 10, 11, 12, 0, time.UTC),
		},
		{
			name:      "seqno and timestamp keys",
			body:      "seqno: 42\ntimestamp: \"2024-03-05T10:11:12Z\"\n",
			wantSeqno: 42,
			wantTime:  time.Date(2024, 3, 5, 10, 11, 12, 0, time.UTC),
		},
		{
			name:      "timestamp preferred over last_run",
			body:      "sequence: 7\ntimestamp: 2024-03-05 10:00:00 +00:00\nlast_run: 2024-03-05 11:00:00 +00:00\n",
			wantSeqno: 7,
			wantTime:  time.Date(2024, 3, 5, 10, 0, 0, 0, time.UTC),
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			st, err := DecodeState(strings.NewReader(tt.body), EncodingStructured)
			if err != nil {
				t.Fatalf("DecodeState failed: %v", err)
			}
			if st.Seqno != tt.wantSeqno {
				t.Errorf("Seqno = %d, want %d", st.Seqno, tt.wantSeqno)
			}
			if !st.Timestamp.Equal(tt.wantTime) {
				t.Errorf("Timestamp = %v, want %v", st.Timestamp, tt.wantTime)
			}
		})
	}
}

func TestDecodeState_Errors(t *testing.T) {
	tests := []struct {
		name string
		body string
		enc  Encoding
	}{
		{"text missing seqno", "timestamp=2024-01-01T00:00:00Z\n", EncodingText},
		{"text missing timestamp", "sequenceNumber=5\n", EncodingText},
		{"text bad seqno", "sequenceNumber=abc\ntimestamp=2024-01-01T00:00:00Z\n", EncodingText},
		{"text negative seqno", "sequenceNumber=-1\ntimestamp=2024-01-01T00:00:00Z\n", EncodingText},
		{"text bad timestamp", "sequenceNumber=5\ntimestamp=yesterday\n", EncodingText},
		{"text no separator", "sequenceNumber 5\n", EncodingText},
		{"text empty", "", EncodingText},
		{"yaml empty", "", EncodingStructured},
		{"yaml missing seqno", "last_run: 2024-03-05 10:11:12 +00:00\n", EncodingStructured},
		{"yaml missing timestamp", "sequence: 12\n", EncodingStructured},
		{"yaml bad timestamp", "sequence: 12\nlast_run: soon\n", EncodingStructured},
		{"yaml malformed", "sequence: [\n", EncodingStructured},
		{"unknown encoding", "sequenceNumber=1\n", Encoding(9)},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := DecodeState(strings.NewReader(tt.body), tt.enc)
			if err == nil {
				t.Fatal("expected error, got nil")
			}
			var decodeErr *DecodeError
			if !errors.As(err, &decodeErr) {
				t.Errorf("error type = %T, want *DecodeError", err)
			}
		})
	}
}

func TestParseEncoding(t *testing.T) {
	tests := []struct {
		in      string
		want    Encoding
		wantErr bool
	}{
		{"", EncodingText, false},
		{"text", EncodingText, false},
		{"TXT", EncodingText, false},
		{"yaml", EncodingStructured, false},
		{"structured", EncodingStructured, false},
		{"xml", 0, true},
	}

	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := ParseEncoding(tt.in)
			if tt.wantErr {
				if err == nil {
					t.Errorf("ParseEncoding(%q) expected error", tt.in)
				}
				return
			}
			if err != nil {
				t.Fatalf("ParseEncoding(%q) unexpected error: %v", tt.in, err)
			}
			if got != tt.want {
				t.Errorf("ParseEncoding(%q) = %v, want %v", tt.in, got, tt.want)
			}
		})
	}
}

func TestParseTimestamp(t *testing.T) {
	want := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)

	tests := []string{
		"2024-01-01T00:00:00Z",
		"2024-01-01T01:00:00+01:00",
		"Mon, 01 Jan 2024 00:00:00 +0000",
		"Mon, 1 Jan 2024 00:00:00 +0000",
		"1 Jan 2024 00:00:00 +0000",
		"  2024-01-01T00:00:00.000Z  ",
	}

	for _, in := range tests {
		t.Run(in, func(t *testing.T) {
			got, err := ParseTimestamp(in)
			if err != nil {
				t.Fatalf("ParseTimestamp(%q) error: %v", in, err)
			}
			if !got.Equal(want) {
				t.Errorf("ParseTimestamp(%q) = %v, want %v", in, got, want)
			}
			if got.Location() != time.UTC {
				t.Errorf("ParseTimestamp(%q) location = %v, want UTC", in, got.Location())
			}
		})
	}
}

func TestParseTimestamp_NamedZones(t *testing.T) {
	tests := []struct {
		in   string
		want time.Time
	}{
		{"Mon, 01 Jan 2024 00:00:00 GMT", time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)},
		{"Mon, 01 Jan 2024 00:00:00 UTC", time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)},
		{"Mon, 01 Jan 2024 00:00:00 EST", time.Date(2024, 1, 1, 5, 0, 0, 0, time.UTC)},
		{"Mon, 1 Jan 2024 00:00:00 EDT", time.Date(2024, 1, 1, 4, 0, 0, 0, time.UTC)},
		{"1 Jan 2024 00:00:00 CST", time.Date(2024, 1, 1, 6, 0, 0, 0, time.UTC)},
		{"Mon, 01 Jan 2024 00:00:00 MDT", time.Date(2024, 1, 1, 6, 0, 0, 0, time.UTC)},
		{"Mon, 01 Jan 2024 00:00:00 PST", time.Date(2024, 1, 1, 8, 0, 0, 0, time.UTC)},
		{"01 Jan 24 00:00 PDT", time.Date(2024, 1, 1, 7, 0, 0, 0, time.UTC)},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := ParseTimestamp(tt.in)
			if err != nil {
				t.Fatalf("ParseTimestamp(%q) error: %v", tt.in, err)
			}
			if !got.Equal(tt.want) || got.Location() != time.UTC {
				t.Errorf("ParseTimestamp(%q) = %v, want %v", tt.in, got, tt.want)
			}
		})
	}
}

func TestParseTimestamp_Invalid(t *testing.T) {
	for _, in := range []string{"", "yesterday", "2024-13-01T00:00:00Z", "1704067200",
		"Mon, 01 Jan 2024 00:00:00 CET", "Mon, 01 Jan 2024 00:00:00 XYZ"} {
		if _, err := ParseTimestamp(in); err == nil {
			t.Errorf("ParseTimestamp(%q) expected error", in)
		}
	}
}
