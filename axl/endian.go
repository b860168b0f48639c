//go:build armbe || arm64be || m68k || mips || mips64 || mips64p32 || ppc || ppc64 || s390 || s390x || shbe || sparc || sparc64

package axl

// The on-disk and on-wire formats are little-endian byte images of the
// half-float sample array. Refuse to build for big-endian targets
// rather than silently produce corrupt records.
var _ = bigEndianTargetsAreUnsupported
