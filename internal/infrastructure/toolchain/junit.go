package toolchain

import (
	"encoding/xml"
	"fmt"
	"os"
	"path/filepath"
	"sort"

	"github.com/alem-hub/taskchecker/internal/domain/grading"
	"github.com/alem-hub/taskchecker/internal/domain/shared"
)

// ErrNoTestReport is returned when a test run left no JUnit XML behind.
var ErrNoTestReport = shared.NewDomainError("toolchain", "Test", shared.ErrNotFound, "no JUnit report")

// junitSuite matches both a <testsuite> and a <testsuites> root.
type junitSuite struct {
	XMLName  xml.Name
	Tests    int          `xml:"tests,attr"`
	Failures int          `xml:"failures,attr"`
	Errors   int          `xml:"errors,attr"`
	Skipped  int          `xml:"skipped,attr"`
	Suites   []junitSuite `xml:"testsuite"`
}

func (s junitSuite) counts() (grading.TestCounts, error) {
	if s.XMLName.Local == "testsuites" {
		var total grading.TestCounts
		for _, child := range s.Suites {
			c, err := child.counts()
			if err != nil {
				return grading.TestCounts{}, err
			}
			total = total.Add(c)
		}
		return total, nil
	}
	// Errors are tests that threw instead of failing an assertion; both lose points.
	return grading.NewTestCounts(s.Tests, s.Failures+s.Errors, s.Skipped)
}

// ParseJUnitReport reads one JUnit XML document.
func ParseJUnitReport(data []byte) (grading.TestCounts, error) {
	var suite junitSuite
	if err := xml.Unmarshal(data, &suite); err != nil {
		return grading.TestCounts{}, fmt.Errorf("parse junit report: %w", err)
	}
	if suite.XMLName.Local != "testsuite" && suite.XMLName.Local != "testsuites" {
		return grading.TestCounts{}, fmt.Errorf("parse junit report: unexpected root <%s>", suite.XMLName.Local)
	}
	return suite.counts()
}

// ParseJUnitDir sums every *.xml report in dir. Gradle writes one file per
// test class.
func ParseJUnitDir(dir string) (grading.TestCounts, error) {
	files, err := filepath.Glob(filepath.Join(dir, "*.xml"))
	if err != nil {
		return grading.TestCounts{}, err
	}
	if len(files) == 0 {
		return grading.TestCounts{}, ErrNoTestReport.Withf("%s", dir)
	}
	sort.Strings(files)

	var total grading.TestCounts
	for _, f := range files {
		data, err := os.ReadFile(f)
		if err != nil {
			return grading.TestCounts{}, err
		}
		c, err := ParseJUnitReport(data)
		if err != nil {
			return grading.TestCounts{}, fmt.Errorf("%s: %w", filepath.Base(f), err)
		}
		total = total.Add(c)
	}
	return total, nil
}
