package log

import (
	"bytes"
	"encoding/json"
	"strings"
	"testing"

	"github.com/stretchr/testify/suite"
)

type LogTestSuite struct {
	suite.Suite
	buf *bytes.Buffer
}

func (suite *LogTestSuite) SetupTest() {
	suite.buf = new(bytes.Buffer)
	InitJSONLogger(suite.buf)
}

func (suite *LogTestSuite) TearDownTest() {
	InitLogger()
}

func (suite *LogTestSuite) lines() []map[string]any {
	var out []map[string]any
	for _, line := range strings.Split(strings.TrimSpace(suite.buf.String()), "\n") {
		if line == "" {
			continue
		}
		entry := map[string]any{}
		suite.Require().NoError(json.Unmarshal([]byte(line), &entry))
		out = append(out, entry)
	}
	return out
}

func (suite *LogTestSuite) TestLevelsAreWritten() {
	Debugf("debug %d", 1)
	Infof("info %s", "two")
	Warnf("warn")
	Errorf("error %v", 3)

	entries := suite.lines()
	suite.Require().Len(entries, 4)
	suite.Equal("debug", entries[0]["level"])
	suite.Equal("debug 1", entries[0]["message"])
	suite.Equal("info two", entries[1]["message"])
	suite.Equal("warn", entries[2]["level"])
	suite.Equal("error", entries[3]["level"])
}

func (suite *LogTestSuite) TestSetLevelFilters() {
	suite.Require().NoError(SetLevel("warn"))

	Debugf("hidden")
	Infof("hidden")
	Warnf("shown")

	entries := suite.lines()
	suite.Require().Len(entries, 1)
	suite.Equal("shown", entries[0]["message"])
}

func (suite *LogTestSuite) TestSetLevelRejectsUnknown() {
	suite.Error(SetLevel("loud"))
}

func (suite *LogTestSuite) TestComponentField() {
	l := Component("cache")
	l.Info().Msg("hello")

	entries := suite.lines()
	suite.Require().Len(entries, 1)
	suite.Equal("cache", entries[0]["component"])
}

func (suite *LogTestSuite) TestCallerPointsAtCallSite() {
	Infof("where")

	entries := suite.lines()
	suite.Require().Len(entries, 1)
	suite.Contains(entries[0]["caller"], "log_test.go")
}

func TestLogTestSuite(t *testing.T) {
	suite.Run(t, new(LogTestSuite))
}
