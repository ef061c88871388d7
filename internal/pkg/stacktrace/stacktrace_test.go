package stacktrace

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestInternalPaths(t *testing.T) {
	stack := []byte(`goroutine 7 [running]:
runtime/debug.Stack()
	/usr/local/go/src/runtime/debug/stack.go:26 +0x5e
github.com/shandysiswandi/otpgate/internal/pkg/goroutine.(*Manager).Go.func1.1()
	/src/otpgate/internal/pkg/goroutine/goroutine.go:71 +0x85
panic({0x1, 0x2})
	/usr/local/go/src/runtime/panic.go:785 +0x132
github.com/shandysiswandi/otpgate/internal/otp/usecase.(*Usecase).Verify()
	/src/otpgate/internal/otp/usecase/verify.go:40
`)

	assert.Equal(t, []string{
		"internal/pkg/goroutine/goroutine.go:71",
		"internal/otp/usecase/verify.go:40",
	}, InternalPaths(stack))
}

func TestInternalPaths_None(t *testing.T) {
	assert.Empty(t, InternalPaths([]byte("goroutine 1 [running]:\nmain.main()\n\t/src/main.go:5 +0x1\n")))
}
