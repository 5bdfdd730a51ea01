package disk

import "fmt"

// Table names for one queue inside the backing file.
// Format: queuify_queue_{name} and queuify_queue_{name}_unfinished_tasks
const tablePrefix = "queuify_queue"

type tables struct {
	items string // FIFO items: (id INTEGER PRIMARY KEY AUTOINCREMENT, value BLOB)
	tasks string // unfinished-task counter: (count INTEGER), exactly one row
}

func tablesFor(queueName string) tables {
	items := tablePrefix + "_" + queueName
	return tables{items: items, tasks: items + "_unfinished_tasks"}
}

// column is one expected row of PRAGMA table_info output, in ordinal order.
// The layout is part of the on-disk contract: an existing table that deviates
// in column count, name, type, or primary-key flag is corruption, never
// something to silently reshape.
type column struct {
	name string
	typ  string
	pk   int
}

var (
	itemColumns = []column{{"id", "INTEGER", 1}, {"value", "BLOB", 0}}
	taskColumns = []column{{"count", "INTEGER", 0}}
)

func createItemsSQL(table string) string {
	return fmt.Sprintf(`CREATE TABLE %q (id INTEGER PRIMARY KEY AUTOINCREMENT, value BLOB)`, table)
}

func createTasksSQL(table string) string {
	return fmt.Sprintf(`CREATE TABLE %q (count INTEGER)`, table)
}

func seedTasksSQL(table string) string {
	return fmt.Sprintf(`INSERT INTO %q (count) VALUES (0)`, table)
}

func countItemsSQL(table string) string {
	return fmt.Sprintf(`SELECT COUNT(*) FROM %q`, table)
}

func insertItemSQL(table string) string {
	return fmt.Sprintf(`INSERT INTO %q (value) VALUES (?)`, table)
}

func oldestItemSQL(table string) string {
	return fmt.Sprintf(`SELECT id, value FROM %q ORDER BY id LIMIT 1`, table)
}

func deleteItemSQL(table string) string {
	return fmt.Sprintf(`DELETE FROM %q WHERE id = ?`, table)
}

func readTasksSQL(table string) string {
	return fmt.Sprintf(`SELECT count FROM %q`, table)
}

func addTasksSQL(table string) string {
	return fmt.Sprintf(`UPDATE %q SET count = count + ?`, table)
}

func dropTableSQL(table string) string {
	return fmt.Sprintf(`DROP TABLE IF EXISTS %q`, table)
}

const tableInfoSQL = `SELECT name, type, pk FROM pragma_table_info(?) ORDER BY cid`
