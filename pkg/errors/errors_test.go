package errors

import (
	"errors"
	"fmt"
	"testing"
)

func TestErrorString(t *testing.T) {
	tests := []struct {
		name string
		err  *Error
		want string
	}{
		{
			name: "bare",
			err:  New(CodeInvalidArgument, "bad request"),
			want: "INVALID_ARGUMENT: bad request",
		},
		{
			name: "with op",
			err:  New(CodeDeviceError, "it broke").WithOp("report-zones"),
			want: "report-zones: DEVICE_ERROR: it broke",
		},
		{
			name: "with errno",
			err:  New(CodeIOError, "pwrite failed").WithErrno(5),
			want: "IO_ERROR: pwrite failed (errno 5)",
		},
		{
			name: "with sense",
			err:  New(CodeDeviceError, "command failed").WithSense(0x5, 0x21, 0x04),
			want: "DEVICE_ERROR: command failed (sense 05h/21h/04h)",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.err.Error(); got != tt.want {
				t.Errorf("Error() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestErrorIsMatchesByClass(t *testing.T) {
	err := Newf(CodeNotZoned, "device %s is flat", "/dev/sda").WithBackend("scsi")
	if !errors.Is(err, ErrNotZoned) {
		t.Error("errors.Is does not match the class sentinel")
	}
	if errors.Is(err, ErrIOError) {
		t.Error("errors.Is matches a different class")
	}
}

func TestErrorUnwrap(t *testing.T) {
	cause := errors.New("underlying")
	err := New(CodeOpenFailure, "open failed").WithCause(cause)
	if !errors.Is(err, cause) {
		t.Error("cause not reachable through Unwrap")
	}
	wrapped := fmt.Errorf("context: %w", err)
	if !errors.Is(wrapped, ErrOpenFailure) {
		t.Error("class not reachable through an outer wrap")
	}
}

func TestCodeOf(t *testing.T) {
	if got := CodeOf(InvalidArgumentf("x")); got != CodeInvalidArgument {
		t.Errorf("CodeOf = %s, want %s", got, CodeInvalidArgument)
	}
	if got := CodeOf(fmt.Errorf("wrap: %w", Unsupportedf("y"))); got != CodeUnsupported {
		t.Errorf("CodeOf through wrap = %s, want %s", got, CodeUnsupported)
	}
	if got := CodeOf(errors.New("foreign")); got != CodeDeviceError {
		t.Errorf("CodeOf foreign error = %s, want %s", got, CodeDeviceError)
	}
}

func TestBuildersPreserveDiagnostics(t *testing.T) {
	err := Newf(CodeDeviceError, "ZBC OUT failed").
		WithOp("finish").
		WithPath("/dev/sg3").
		WithBackend("scsi").
		WithSense(0xb, 0x00, 0x00)
	if err.Op != "finish" || err.Path != "/dev/sg3" || err.Backend != "scsi" {
		t.Errorf("builder fields lost: %+v", err)
	}
	if err.Sense == nil || err.Sense.Key != 0xb {
		t.Errorf("sense data lost: %+v", err.Sense)
	}
}
