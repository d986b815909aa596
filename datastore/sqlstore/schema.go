package sqlstore

// The chain selector is stored as text since selectors overflow a signed bigint.
const (
	schemaAddressReferences = `
		CREATE TABLE IF NOT EXISTS address_references (
			ref_key        varchar(512) PRIMARY KEY,
			chain_selector varchar(32) not null,
			contract_type  varchar(255) not null,
			version        varchar(255) not null,
			qualifier      varchar(255) not null,
			address        varchar(255) not null,
			labels         text not null
		);`

	queryAddressRefByKey = `
		SELECT chain_selector, contract_type, version, qualifier, address, labels
		FROM address_references
		WHERE ref_key = $1`
	queryAllAddressRefs = `
		SELECT chain_selector, contract_type, version, qualifier, address, labels
		FROM address_references`
	queryInsertAddressRef = `
		INSERT INTO address_references
			(ref_key, chain_selector, contract_type, version, qualifier, address, labels)
		VALUES ($1, $2, $3, $4, $5, $6, $7)`
	queryUpdateAddressRef = `
		UPDATE address_references SET address = $2, labels = $3
		WHERE ref_key = $1`
)
