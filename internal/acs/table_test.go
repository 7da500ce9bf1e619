package acs

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/crosswalk-cli/internal/crosswalk"
)

func countyRows(cols []string, rows ...crosswalk.Row) *crosswalk.Table {
	return &crosswalk.Table{KeyColumn: KeyCounty, DimColumns: []string{DimYear}, ValueColumns: cols, Rows: rows}
}

func TestIncomeFields(t *testing.T) {
	labels := map[string]string{
		"B19131_001E":  "Estimate!!Total:",
		"B19131_007E":  "Estimate!!Total:!!Married-couple family:!!With own children of the householder under 18 years:!!$150,000 to $199,999",
		"B19131_008E":  "Estimate!!Total:!!Married-couple family:!!With own children of the householder under 18 years:!!$200,000 or more",
		"B19131_008M":  "Margin of Error!!Total:!!Married-couple family:!!With own children of the householder under 18 years:!!$200,000 or more",
		"B19131_050E":  "Estimate!!Total:!!Other family:!!With own children of the householder under 18 years:!!$200,000 or more",
		"B19131_060E":  "Estimate!!Total:!!Other family:!!No own children of the householder under 18 years:!!$200,000 or more",
		"B19131_009EA": "Annotation",
	}
	got := IncomeFields(labels)
	assert.Equal(t, []string{"B19131_007E", "B19131_008E", "B19131_050E"}, got[FieldIncome150Plus])
	assert.Equal(t, []string{"B19131_008E", "B19131_050E"}, got[FieldIncome200Plus])

	assert.Empty(t, IncomeFields(map[string]string{"B19131_001E": "Estimate!!Total:"}))
}

func TestJoin(t *testing.T) {
	a := countyRows([]string{"x"},
		crosswalk.Row{Key: "11001", Dims: []string{"2022"}, Values: []float64{1}},
		crosswalk.Row{Key: "24031", Dims: []string{"2022"}, Values: []float64{2}},
	)
	b := countyRows([]string{"y"},
		crosswalk.Row{Key: "24031", Dims: []string{"2022"}, Values: []float64{20}},
		crosswalk.Row{Key: "11001", Dims: []string{"2021"}, Values: []float64{10}},
	)
	got, err := Join(a, b)
	require.NoError(t, err)
	assert.Equal(t, []string{"x", "y"}, got.ValueColumns)
	require.Len(t, got.Rows, 3)

	assert.Equal(t, []string{"2021"}, got.Rows[0].Dims)
	assert.True(t, math.IsNaN(got.Rows[0].Values[0]))
	assert.Equal(t, 10.0, got.Rows[0].Values[1])

	assert.Equal(t, 1.0, got.Rows[1].Values[0])
	assert.True(t, math.IsNaN(got.Rows[1].Values[1]))

	assert.Equal(t, []float64{2, 20}, got.Rows[2].Values)
	assert.Equal(t, []float64{1}, a.Rows[0].Values)
}

func TestJoin_Errors(t *testing.T) {
	a := countyRows([]string{"x"})
	_, err := Join(a, countyRows([]string{"x"}))
	assert.ErrorContains(t, err, "both tables")

	z := &crosswalk.Table{KeyColumn: crosswalk.KeyZCTA, DimColumns: []string{DimYear}}
	_, err = Join(a, z)
	assert.Error(t, err)

	_, err = Join(nil, a)
	assert.Error(t, err)
}

func TestConcat(t *testing.T) {
	y1 := countyRows([]string{"x"}, crosswalk.Row{Key: "24031", Dims: []string{"2021"}, Values: []float64{1}})
	y2 := countyRows([]string{"z", "x"}, crosswalk.Row{Key: "11001", Dims: []string{"2022"}, Values: []float64{3, 2}})
	got, err := Concat(y1, nil, y2)
	require.NoError(t, err)
	assert.Equal(t, []string{"11001", "24031"}, got.Keys())
	assert.Equal(t, []string{"x", "z"}, got.ValueColumns)
	assert.Equal(t, []float64{2, 3}, got.Rows[0].Values)
	assert.Equal(t, 1.0, got.Rows[1].Values[0])
	assert.True(t, math.IsNaN(got.Rows[1].Values[1]))

	_, err = Concat(y1, &crosswalk.Table{KeyColumn: crosswalk.KeyZCTA, DimColumns: []string{DimYear}})
	assert.Error(t, err)
	_, err = Concat()
	assert.Error(t, err)
}

func TestAddChooserRate(t *testing.T) {
	tbl := &crosswalk.Table{
		KeyColumn:    crosswalk.KeyZCTA,
		ValueColumns: []string{FieldPrivateEnrolled, FieldPublicEnrolled},
		Rows: []crosswalk.Row{
			{Key: "20001", Values: []float64{25, 75}},
			{Key: "20002", Values: []float64{0, 0}},
			{Key: "20003", Values: []float64{math.NaN(), 10}},
		},
	}
	require.NoError(t, AddChooserRate(tbl))
	assert.Equal(t, FieldChooserRate, tbl.ValueColumns[2])
	assert.Equal(t, 0.25, tbl.Rows[0].Values[2])
	assert.True(t, math.IsNaN(tbl.Rows[1].Values[2]))
	assert.True(t, math.IsNaN(tbl.Rows[2].Values[2]))

	assert.Error(t, AddChooserRate(tbl))
	assert.Error(t, AddChooserRate(&crosswalk.Table{ValueColumns: []string{FieldPublicEnrolled}}))
}

func TestPopulation(t *testing.T) {
	tbl := &crosswalk.Table{
		KeyColumn:    crosswalk.KeyZCTA,
		DimColumns:   []string{DimYear},
		ValueColumns: []string{FieldPopulation},
		Rows: []crosswalk.Row{
			{Key: "20001", Dims: []string{"2021"}, Values: []float64{1}},
			{Key: "20001", Dims: []string{"2022"}, Values: []float64{2}},
			{Key: "20002", Dims: []string{"2022"}, Values: []float64{math.NaN()}},
		},
	}
	pop, err := Population(tbl, FieldPopulation, "2022")
	require.NoError(t, err)
	assert.Equal(t, map[string]float64{"20001": 2}, pop)

	_, err = Population(tbl, FieldPopulation, "2010")
	assert.Error(t, err)
	_, err = Population(tbl, "households", "2022")
	assert.Error(t, err)
}
