package records

// Column is one field of the canonical record. Name is the header written to
// the output artifact, Key is the identifier used by storage.
type Column struct {
	Name string
	Key  string
}

// Schema is the fixed, ordered column layout of a canonical record, it matches
// the column order of the portal's listing tables.
var Schema = []Column{
	{Name: "Tanggal Pembayaran", Key: "payment_date"},
	{Name: "Layanan", Key: "service_type"},
	{Name: "Kategori Produk", Key: "product_category"},
	{Name: "Nomor Permohonan", Key: "application_number"},
	{Name: "Tanggal Permohonan", Key: "application_date"},
	{Name: "Penjamin", Key: "guarantor"},
	{Name: "Nama", Key: "name"},
	{Name: "Jenis Kelamin", Key: "sex"},
	{Name: "Tanggal Lahir", Key: "birth_date"},
	{Name: "Kebangsaan", Key: "nationality"},
	{Name: "No. Passport", Key: "passport_number"},
	{Name: "Jenis Produk", Key: "product_type"},
	{Name: "Tujuan", Key: "destination"},
	{Name: "Posisi Permohonan", Key: "application_position"},
	{Name: "Status Permohonan", Key: "application_status"},
}

const (
	ColPaymentDate = iota
	ColServiceType
	ColProductCategory
	ColApplicationNumber
	ColApplicationDate
	ColGuarantor
	ColName
	ColSex
	ColBirthDate
	ColNationality
	ColPassportNumber
	ColProductType
	ColDestination
	ColApplicationPosition
	ColApplicationStatus
)

// KeyColumn is the business key of a record.
const KeyColumn = ColApplicationNumber

// Header returns the column names in schema order.
func Header() []string {
	out := make([]string, len(Schema))
	for i, c := range Schema {
		out[i] = c.Name
	}
	return out
}

// ColumnIndex returns the position of the column with the given name or key.
func ColumnIndex(nameOrKey string) (int, bool) {
	for i, c := range Schema {
		if c.Name == nameOrKey || c.Key == nameOrKey {
			return i, true
		}
	}
	return 0, false
}
