package validator

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestValidateGradeRequest(t *testing.T) {
	v := New()

	tests := []struct {
		name    string
		req     GradeRequest
		wantErr bool
		field   string
	}{
		{name: "single ok", req: GradeRequest{Year: "2025", Form: "odd", Section: "lang", Answers: AnswerSheet{"1": 1}}},
		{name: "missing year", req: GradeRequest{Form: "odd"}, wantErr: true, field: "year"},
		{name: "missing form", req: GradeRequest{Year: "2025"}, wantErr: true, field: "form"},
		{name: "unknown form", req: GradeRequest{Year: "2025", Form: "triple"}, wantErr: true, field: "form"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := v.Validate(&tt.req)
			if !tt.wantErr {
				assert.NoError(t, err)
				return
			}
			var verrs ValidationErrors
			require.ErrorAs(t, err, &verrs)
			assert.Equal(t, tt.field, verrs[0].Field)
		})
	}
}

func TestValidateSubjectRange(t *testing.T) {
	v := New()

	req := &SubjectGradeRequest{Year: 2025, Subject: "science", StartQ: 10, EndQ: 5, Answers: AnswerSheet{}, UserID: "u1"}
	err := v.Validate(req)
	var verrs ValidationErrors
	require.ErrorAs(t, err, &verrs)
	assert.Equal(t, "range", verrs[0].Rule)

	req.Subject = "korean"
	req.EndQ = 20
	err = v.Validate(req)
	require.ErrorAs(t, err, &verrs)
	assert.Equal(t, "subject", verrs[0].Field)

	req.Subject = "mock1"
	assert.NoError(t, v.Validate(req))
}

func TestExamYearJSON(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want ExamYear
	}{
		{name: "number", in: `2025`, want: "2025"},
		{name: "string", in: `"2025"`, want: "2025"},
		{name: "pre edition", in: `"2009_pre"`, want: "2009_pre"},
		{name: "null", in: `null`, want: ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var y ExamYear
			require.NoError(t, json.Unmarshal([]byte(tt.in), &y))
			assert.Equal(t, tt.want, y)
		})
	}

	var y ExamYear
	assert.Error(t, json.Unmarshal([]byte(`true`), &y))
}

func TestYearEchoKeepsJSONType(t *testing.T) {
	tests := []struct {
		name string
		body string
		echo string
	}{
		{name: "quoted year stays a string", body: `{"year":"2025","form":"odd"}`, echo: `"2025"`},
		{name: "numeric year stays a number", body: `{"year":2025,"form":"odd"}`, echo: `2025`},
		{name: "pre edition", body: `{"year":"2009_pre","form":"odd"}`, echo: `"2009_pre"`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var req GradeRequest
			require.NoError(t, json.Unmarshal([]byte(tt.body), &req))
			out, err := json.Marshal(struct {
				Year json.RawMessage `json:"year"`
			}{Year: req.YearEcho()})
			require.NoError(t, err)
			assert.JSONEq(t, `{"year":`+tt.echo+`}`, string(out))

			var reveal RevealAnswersRequest
			require.NoError(t, json.Unmarshal([]byte(tt.body), &reveal))
			assert.Equal(t, tt.echo, string(reveal.YearEcho()))
		})
	}

	built := GradeRequest{Year: "2025"}
	assert.Equal(t, `"2025"`, string(built.YearEcho()))
}

func TestGradeRequestShape(t *testing.T) {
	var req GradeRequest
	require.NoError(t, json.Unmarshal([]byte(`{"year":2025,"form":"odd","lang_answers":{},"logic_answers":{"1":2}}`), &req))
	assert.True(t, req.IsMulti())
	assert.False(t, req.IsSingle())

	req = GradeRequest{}
	require.NoError(t, json.Unmarshal([]byte(`{"year":2025,"form":"odd","section":"lang","answers":{"1":2},"lang_answers":{}}`), &req))
	assert.False(t, req.IsMulti())
	assert.True(t, req.IsSingle())

	req = GradeRequest{}
	require.NoError(t, json.Unmarshal([]byte(`{"year":2025,"form":"odd","lang_answers":null}`), &req))
	assert.False(t, req.IsMulti())
	assert.False(t, req.IsSingle())
}

func TestMarkViewedIDs(t *testing.T) {
	first := uint(7)
	ids := make([]uint, 0, 30)
	for i := uint(1); i <= 30; i++ {
		ids = append(ids, i)
	}
	req := &MarkViewedRequest{AttemptID: &first, AttemptIDs: ids}

	got := req.IDs()
	assert.Len(t, got, MaxViewedAttempts)
	assert.Equal(t, uint(7), got[0])
	assert.NotContains(t, got[1:], uint(7))

	assert.Error(t, New().Validate(&MarkViewedRequest{}))
}

func TestSubjectRequestRangeAliases(t *testing.T) {
	tests := []struct {
		name      string
		body      string
		wantStart int
		wantEnd   int
	}{
		{name: "snake case", body: `{"start_q":3,"end_q":9}`, wantStart: 3, wantEnd: 9},
		{name: "camel case", body: `{"startQ":3,"endQ":9}`, wantStart: 3, wantEnd: 9},
		{name: "snake case wins", body: `{"start_q":2,"startQ":5,"endQ":9}`, wantStart: 2, wantEnd: 9},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var own SubjectGradeRequest
			require.NoError(t, json.Unmarshal([]byte(tt.body), &own))
			assert.Equal(t, tt.wantStart, own.StartQ)
			assert.Equal(t, tt.wantEnd, own.EndQ)

			var staff StaffSubjectGradeRequest
			require.NoError(t, json.Unmarshal([]byte(tt.body), &staff))
			assert.Equal(t, tt.wantStart, staff.StartQ)
			assert.Equal(t, tt.wantEnd, staff.EndQ)
		})
	}

	v := New()
	var req SubjectGradeRequest
	require.NoError(t, json.Unmarshal([]byte(`{"year":2025,"subject":"humanities","startQ":1,"endQ":20,"answers":{"1":3},"user_id":"u1"}`), &req))
	assert.NoError(t, v.Validate(&req))
}
