package domain

import (
	"fmt"
	"strings"
)

// Column identifies one variable of a FluxRecord.
type Column int

// Output columns. The declaration order is the default table order.
const (
	Hs Column = iota
	Hl
	HlWebb
	CO2Flux
	CO2FluxWebb
	Cd
	Ustar
	Tstar
	Zeta
	MOLength
	WUCsp
	WVCsp
	UVCsp
	WTCsp
	UTCsp
	VTCsp
	WQCsp
	WCCsp
	SigU
	SigV
	SigW
	SigT
	WspdVecMean
	WdirVecMean
	TempSonicMean
	PhiU
	PhiV
	PhiW
	PhiT
	PhiUT
	PhiMSheba
	PhiHSheba
	EpsilonU
	EpsilonV
	EpsilonW
	Epsilon
	PhiEpsilon
	NSu
	NSv
	NSw
	NSt
	NSq
	NSc
	NT
	PhiNT
	DeltaU
	DeltaV
	DeltaT
	SkewU
	SkewV
	SkewW
	SkewT
	SkewUW
	SkewVW
	SkewWT
	SkewUT
	KurtU
	KurtV
	KurtW
	KurtT
	KurtUW
	KurtVW
	KurtWT
	KurtUT
	BulkHs
	BulkHl
	BulkUstar
	BulkTstar
	BulkQstar
	BulkZ0
	BulkZot
	BulkZoq
	BulkCd
	BulkZeta

	NumColumns int = iota
)

// ColumnAttrs describes a column for the writers.
type ColumnAttrs struct {
	Name     string
	Units    string
	LongName string
}

var columnAttrs = [NumColumns]ColumnAttrs{
	Hs:            {"Hs", "W/m2", "sensible heat flux"},
	Hl:            {"Hl", "W/m2", "latent heat flux"},
	HlWebb:        {"Hl_Webb", "W/m2", "latent heat flux with Webb density correction"},
	CO2Flux:       {"CO2_flux", "mg m-2 s-1", "CO2 flux"},
	CO2FluxWebb:   {"CO2_flux_Webb", "mg m-2 s-1", "CO2 flux with Webb density correction"},
	Cd:            {"Cd", "1", "drag coefficient"},
	Ustar:         {"ustar", "m/s", "friction velocity"},
	Tstar:         {"Tstar", "degC", "temperature scale"},
	Zeta:          {"zeta_level_n", "1", "Monin-Obukhov stability parameter z/L"},
	MOLength:      {"MO_length", "m", "Obukhov length"},
	WUCsp:         {"wu_csp", "m2/s2", "w'u' covariance from the cospectrum"},
	WVCsp:         {"wv_csp", "m2/s2", "w'v' covariance from the cospectrum"},
	UVCsp:         {"uv_csp", "m2/s2", "u'v' covariance from the cospectrum"},
	WTCsp:         {"wT_csp", "degC m/s", "w'T' covariance from the cospectrum"},
	UTCsp:         {"uT_csp", "degC m/s", "u'T' covariance from the cospectrum"},
	VTCsp:         {"vT_csp", "degC m/s", "v'T' covariance from the cospectrum"},
	WQCsp:         {"wq_csp", "g m-2 s-1", "w'q' covariance from the cospectrum"},
	WCCsp:         {"wc_csp", "mg m-2 s-1", "w'c' covariance from the cospectrum"},
	SigU:          {"sigU", "m/s", "standard deviation of streamwise wind"},
	SigV:          {"sigV", "m/s", "standard deviation of crosswind"},
	SigW:          {"sigW", "m/s", "standard deviation of vertical wind"},
	SigT:          {"sigT", "degC", "standard deviation of sonic temperature"},
	WspdVecMean:   {"wspd_vec_mean", "m/s", "vector mean wind speed"},
	WdirVecMean:   {"wdir_vec_mean", "degrees", "vector mean wind direction"},
	TempSonicMean: {"temp_sonic_mean", "degC", "mean sonic temperature"},
	PhiU:          {"phi_U", "1", "sigU/ustar"},
	PhiV:          {"phi_V", "1", "sigV/ustar"},
	PhiW:          {"phi_W", "1", "sigW/ustar"},
	PhiT:          {"phi_T", "1", "sigT/|Tstar|"},
	PhiUT:         {"phi_UT", "1", "u'T'/(ustar Tstar)"},
	PhiMSheba:     {"phi_m_sheba", "1", "SHEBA momentum universal function at zeta"},
	PhiHSheba:     {"phi_h_sheba", "1", "SHEBA heat universal function at zeta"},
	EpsilonU:      {"epsilon_u", "m2/s3", "dissipation rate from the u spectrum"},
	EpsilonV:      {"epsilon_v", "m2/s3", "dissipation rate from the v spectrum"},
	EpsilonW:      {"epsilon_w", "m2/s3", "dissipation rate from the w spectrum"},
	Epsilon:       {"epsilon", "m2/s3", "median of per-axis dissipation rates"},
	PhiEpsilon:    {"Phi_epsilon", "1", "dimensionless dissipation rate"},
	NSu:           {"nSu", "1", "inertial subrange slope of the u spectrum"},
	NSv:           {"nSv", "1", "inertial subrange slope of the v spectrum"},
	NSw:           {"nSw", "1", "inertial subrange slope of the w spectrum"},
	NSt:           {"nSt", "1", "inertial subrange slope of the T spectrum"},
	NSq:           {"nSq", "1", "inertial subrange slope of the h2o spectrum"},
	NSc:           {"nSc", "1", "inertial subrange slope of the co2 spectrum"},
	NT:            {"NT", "degC2/s", "dissipation rate of half the temperature variance"},
	PhiNT:         {"Phi_NT", "1", "dimensionless temperature variance dissipation"},
	DeltaU:        {"DeltaU", "1", "normalized linear trend of streamwise wind"},
	DeltaV:        {"DeltaV", "1", "normalized linear trend of crosswind"},
	DeltaT:        {"DeltaT", "1", "normalized linear trend of sonic temperature"},
	SkewU:         {"Skew_u", "1", "skewness of u"},
	SkewV:         {"Skew_v", "1", "skewness of v"},
	SkewW:         {"Skew_w", "1", "skewness of w"},
	SkewT:         {"Skew_T", "1", "skewness of T"},
	SkewUW:        {"Skew_uw", "1", "skewness of u'w'"},
	SkewVW:        {"Skew_vw", "1", "skewness of v'w'"},
	SkewWT:        {"Skew_wT", "1", "skewness of w'T'"},
	SkewUT:        {"Skew_uT", "1", "skewness of u'T'"},
	KurtU:         {"Kurt_u", "1", "kurtosis of u"},
	KurtV:         {"Kurt_v", "1", "kurtosis of v"},
	KurtW:         {"Kurt_w", "1", "kurtosis of w"},
	KurtT:         {"Kurt_T", "1", "kurtosis of T"},
	KurtUW:        {"Kurt_uw", "1", "kurtosis of u'w'"},
	KurtVW:        {"Kurt_vw", "1", "kurtosis of v'w'"},
	KurtWT:        {"Kurt_wT", "1", "kurtosis of w'T'"},
	KurtUT:        {"Kurt_uT", "1", "kurtosis of u'T'"},
	BulkHs:        {"bulk_Hs", "W/m2", "bulk sensible heat flux"},
	BulkHl:        {"bulk_Hl", "W/m2", "bulk latent heat flux"},
	BulkUstar:     {"bulk_ustar", "m/s", "bulk friction velocity"},
	BulkTstar:     {"bulk_tstar", "degC", "bulk temperature scale"},
	BulkQstar:     {"bulk_qstar", "kg/kg", "bulk humidity scale"},
	BulkZ0:        {"bulk_z0", "m", "bulk momentum roughness length"},
	BulkZot:       {"bulk_zot", "m", "bulk temperature roughness length"},
	BulkZoq:       {"bulk_zoq", "m", "bulk humidity roughness length"},
	BulkCd:        {"bulk_Cd", "1", "bulk drag coefficient"},
	BulkZeta:      {"bulk_zeta", "1", "bulk stability parameter z/L"},
}

var columnByName = func() map[string]Column {
	m := make(map[string]Column, NumColumns)
	for i, a := range columnAttrs {
		m[a.Name] = Column(i)
	}
	return m
}()

func (c Column) String() string {
	if c < 0 || int(c) >= NumColumns {
		return fmt.Sprintf("column(%d)", int(c))
	}
	return columnAttrs[c].Name
}

// Attrs returns the column's descriptive attributes.
func (c Column) Attrs() ColumnAttrs {
	if c < 0 || int(c) >= NumColumns {
		return ColumnAttrs{Name: c.String()}
	}
	return columnAttrs[c]
}

// ParseColumn maps an output variable name to its Column.
func ParseColumn(name string) (Column, error) {
	c, ok := columnByName[name]
	if !ok {
		return 0, fmt.Errorf("%w: unknown output column %q", ErrConfiguration, name)
	}
	return c, nil
}

// Schema is the ordered set of columns every FluxRecord carries.
type Schema struct {
	cols  []Column
	index [NumColumns]int
}

// FullSchema returns a schema holding every column in declaration order.
func FullSchema() Schema {
	cols := make([]Column, NumColumns)
	for i := range cols {
		cols[i] = Column(i)
	}
	s, _ := NewSchema(cols)
	return s
}

// NewSchema builds a schema from columns, rejecting duplicates.
func NewSchema(cols []Column) (Schema, error) {
	if len(cols) == 0 {
		return Schema{}, fmt.Errorf("%w: empty output schema", ErrConfiguration)
	}
	s := Schema{cols: append([]Column(nil), cols...)}
	for i := range s.index {
		s.index[i] = -1
	}
	for i, c := range cols {
		if c < 0 || int(c) >= NumColumns {
			return Schema{}, fmt.Errorf("%w: invalid column %d", ErrConfiguration, int(c))
		}
		if s.index[c] >= 0 {
			return Schema{}, fmt.Errorf("%w: duplicate output column %q", ErrConfiguration, c)
		}
		s.index[c] = i
	}
	return s, nil
}

// ParseSchema builds a schema from a comma separated list of column names.
// An empty list selects every column.
func ParseSchema(list string) (Schema, error) {
	if strings.TrimSpace(list) == "" {
		return FullSchema(), nil
	}
	var cols []Column
	for _, name := range strings.Split(list, ",") {
		c, err := ParseColumn(strings.TrimSpace(name))
		if err != nil {
			return Schema{}, err
		}
		cols = append(cols, c)
	}
	return NewSchema(cols)
}

// Columns returns the schema's columns in order.
func (s Schema) Columns() []Column { return append([]Column(nil), s.cols...) }

// Len returns the number of columns.
func (s Schema) Len() int { return len(s.cols) }

// Index returns the position of c, or -1 when c is not configured.
func (s Schema) Index(c Column) int {
	if c < 0 || int(c) >= NumColumns || len(s.cols) == 0 {
		return -1
	}
	return s.index[c]
}

// Names returns the column names in order.
func (s Schema) Names() []string {
	out := make([]string, len(s.cols))
	for i, c := range s.cols {
		out[i] = c.String()
	}
	return out
}
