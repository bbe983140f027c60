package tec

import (
	"errors"
	"fmt"
	"strconv"
)

// Command codes for the TC-720 ASCII protocol.
const (
	cmdGetTemp1         = "01"
	cmdGetOutput        = "02"
	cmdGetSetPoint      = "03"
	cmdGetTemp2         = "04"
	cmdSetTemp          = "1c"
	cmdSetOutputEnable  = "30"
	cmdSetMode          = "3d"
	cmdSetControlType   = "3f"
	cmdSetSensor1Choice = "4c"
	cmdSetSensor2Choice = "4d"
)

const (
	frameStart = '*'
	frameEnd   = '\r'
	replyEnd   = '^'

	// replyLen is '*' + 4 data + 2 checksum + '^'.
	replyLen = 8

	// tempScale converts between °C and the device's hundredths.
	tempScale = 100.0
	// outputFullScale is the raw output value at 100 %.
	outputFullScale = 511.0
)

var (
	// ErrFrame is returned when a reply is not a well-formed frame.
	ErrFrame = errors.New("tec: malformed frame")
	// ErrChecksum is returned when a reply checksum does not match.
	ErrChecksum = errors.New("tec: checksum mismatch")
)

// checksum is the low byte of the sum of the payload characters,
// as two lowercase hex digits.
func checksum(payload string) string {
	var sum byte
	for i := 0; i < len(payload); i++ {
		sum += payload[i]
	}
	return fmt.Sprintf("%02x", sum)
}

// encodeFrame builds a request frame for cmd carrying value.
// Negative values are sent as 16-bit two's complement.
func encodeFrame(cmd string, value int) []byte {
	payload := cmd + fmt.Sprintf("%04x", uint16(int16(value)))
	return []byte(string(frameStart) + payload + checksum(payload) + string(frameEnd))
}

// decodeReply parses a reply frame and returns its signed value.
func decodeReply(b []byte) (int, error) {
	if len(b) != replyLen || b[0] != frameStart || b[replyLen-1] != replyEnd {
		return 0, fmt.Errorf("%w: %q", ErrFrame, b)
	}
	data := string(b[1:5])
	if got, want := string(b[5:7]), checksum(data); got != want {
		return 0, fmt.Errorf("%w: got %s want %s", ErrChecksum, got, want)
	}
	v, err := strconv.ParseUint(data, 16, 16)
	if err != nil {
		return 0, fmt.Errorf("%w: %v", ErrFrame, err)
	}
	return int(int16(uint16(v))), nil
}

func celsiusToRaw(c float64) int {
	if c < 0 {
		return int(c*tempScale - 0.5)
	}
	return int(c*tempScale + 0.5)
}

func rawToCelsius(raw int) float64 {
	return float64(raw) / tempScale
}

func rawToPercent(raw int) float64 {
	return float64(raw) / outputFullScale * 100
}
