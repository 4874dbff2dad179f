package db

import "fmt"

// SchemaSQL returns the schema definition for the record table and the
// search log. Credential fields are optional so partial records can be stored.
func SchemaSQL(table string) string {
	t := quoteIdent(table)
	return fmt.Sprintf(`
    DEFINE TABLE IF NOT EXISTS %[1]s SCHEMAFULL;
    DEFINE FIELD IF NOT EXISTS company_name ON %[1]s TYPE option<string>;
    DEFINE FIELD IF NOT EXISTS username ON %[1]s TYPE option<string>;
    DEFINE FIELD IF NOT EXISTS password ON %[1]s TYPE option<string>;
    DEFINE FIELD IF NOT EXISTS email ON %[1]s TYPE option<string>;
    DEFINE FIELD IF NOT EXISTS note ON %[1]s TYPE option<string>;
    DEFINE FIELD IF NOT EXISTS created_by_user_id ON %[1]s TYPE option<string>;
    DEFINE FIELD IF NOT EXISTS created_at ON %[1]s TYPE datetime DEFAULT time::now();
    DEFINE INDEX IF NOT EXISTS %[2]s ON %[1]s FIELDS created_by_user_id, company_name;

    -- Audit trail: append-only, no deletion path.
    DEFINE TABLE IF NOT EXISTS search_log SCHEMAFULL;
    DEFINE FIELD IF NOT EXISTS user_id ON search_log TYPE string;
    DEFINE FIELD IF NOT EXISTS kind ON search_log TYPE string ASSERT $value IN ["company", "list_all"];
    DEFINE FIELD IF NOT EXISTS subject ON search_log TYPE string DEFAULT "";
    DEFINE FIELD IF NOT EXISTS searched_at ON search_log TYPE datetime;
    DEFINE INDEX IF NOT EXISTS search_log_user ON search_log FIELDS user_id, searched_at;
`, t, quoteIdent(table+"_owner_company"))
}
