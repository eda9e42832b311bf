package runner

const (
	// DefaultRetries is the number of additional attempts allowed after a failed first attempt
	DefaultRetries = 3

	// DefaultPackagePrefix is stripped from package names to derive the short name
	// handed to the test runner's package filter
	DefaultPackagePrefix = `^ckeditor5?-`

	// DefaultCoverageFlag is appended to the test command when coverage is collected
	DefaultCoverageFlag = "--coverage"

	// exitCodeNotStarted is recorded when the process could not be started at all
	exitCodeNotStarted = -1
)

// DefaultTestCommand is the argv template used when no config file overrides it
var DefaultTestCommand = CommandTemplate{
	"yarn", "test", "--reporter=dots", "--production", "-f", "{{.ShortName}}",
}
