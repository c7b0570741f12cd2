package store

// Schema bootstrap is idempotent: every statement is IF NOT EXISTS, so Open
// can run it on every start. Rows carry their natural key in a UNIQUE
// constraint; duplicates are shed by INSERT OR IGNORE at load time.
const schema = `
CREATE TABLE IF NOT EXISTS tbl_wind_data (
	id                      INTEGER PRIMARY KEY,
	datetime                TEXT NOT NULL,
	year                    INTEGER,
	month                   INTEGER,
	day                     INTEGER,
	weekday                 INTEGER,
	hour                    INTEGER,
	minute                  INTEGER,
	resolutioncode          TEXT,
	offshoreonshore         TEXT,
	region                  TEXT,
	gridconnectiontype      TEXT,
	measured                REAL,
	monitoredcapacity       REAL,
	mostrecentforecast      REAL,
	mostrecentconfidence10  REAL,
	mostrecentconfidence90  REAL,
	dayahead11hforecast     REAL,
	dayahead11hconfidence10 REAL,
	dayahead11hconfidence90 REAL,
	dayaheadforecast        REAL,
	dayaheadconfidence10    REAL,
	dayaheadconfidence90    REAL,
	weekaheadforecast       REAL,
	weekaheadconfidence10   REAL,
	weekaheadconfidence90   REAL,
	loadfactor              REAL,
	decrementalbidid        TEXT,
	UNIQUE (datetime, region, offshoreonshore, gridconnectiontype)
);
CREATE INDEX IF NOT EXISTS idx_wind_datetime ON tbl_wind_data (datetime);
CREATE INDEX IF NOT EXISTS idx_wind_year     ON tbl_wind_data (year);
CREATE INDEX IF NOT EXISTS idx_wind_month    ON tbl_wind_data (month);
CREATE INDEX IF NOT EXISTS idx_wind_day      ON tbl_wind_data (day);
CREATE INDEX IF NOT EXISTS idx_wind_weekday  ON tbl_wind_data (weekday);
CREATE INDEX IF NOT EXISTS idx_wind_hour     ON tbl_wind_data (hour);

CREATE TABLE IF NOT EXISTS tbl_solar_data (
	id                      INTEGER PRIMARY KEY,
	datetime                TEXT NOT NULL,
	year                    INTEGER,
	month                   INTEGER,
	day                     INTEGER,
	weekday                 INTEGER,
	hour                    INTEGER,
	minute                  INTEGER,
	resolutioncode          TEXT,
	region                  TEXT,
	measured                REAL,
	monitoredcapacity       REAL,
	mostrecentforecast      REAL,
	mostrecentconfidence10  REAL,
	mostrecentconfidence90  REAL,
	dayahead11hforecast     REAL,
	dayahead11hconfidence10 REAL,
	dayahead11hconfidence90 REAL,
	dayaheadforecast        REAL,
	dayaheadconfidence10    REAL,
	dayaheadconfidence90    REAL,
	weekaheadforecast       REAL,
	weekaheadconfidence10   REAL,
	weekaheadconfidence90   REAL,
	loadfactor              REAL,
	UNIQUE (datetime, region)
);
CREATE INDEX IF NOT EXISTS idx_solar_datetime ON tbl_solar_data (datetime);
CREATE INDEX IF NOT EXISTS idx_solar_year     ON tbl_solar_data (year);
CREATE INDEX IF NOT EXISTS idx_solar_month    ON tbl_solar_data (month);
CREATE INDEX IF NOT EXISTS idx_solar_day      ON tbl_solar_data (day);
CREATE INDEX IF NOT EXISTS idx_solar_weekday  ON tbl_solar_data (weekday);
CREATE INDEX IF NOT EXISTS idx_solar_hour     ON tbl_solar_data (hour);

CREATE TABLE IF NOT EXISTS tbl_belpex_prices (
	id                INTEGER PRIMARY KEY,
	datetime          TEXT NOT NULL UNIQUE,
	year              INTEGER,
	month             INTEGER,
	day               INTEGER,
	weekday           INTEGER,
	hour              INTEGER,
	price_eur_per_mwh REAL
);
CREATE INDEX IF NOT EXISTS idx_belpex_year    ON tbl_belpex_prices (year);
CREATE INDEX IF NOT EXISTS idx_belpex_month   ON tbl_belpex_prices (month);
CREATE INDEX IF NOT EXISTS idx_belpex_day     ON tbl_belpex_prices (day);
CREATE INDEX IF NOT EXISTS idx_belpex_weekday ON tbl_belpex_prices (weekday);
CREATE INDEX IF NOT EXISTS idx_belpex_hour    ON tbl_belpex_prices (hour);
`

// Reporting views. Wind and solar are measured per zone, so the views sum
// the zones into one figure per timestamp.
const views = `
CREATE VIEW IF NOT EXISTS v_wind AS
SELECT datetime, year, month, day, weekday, hour, minute,
       SUM(measured) AS measured_wind,
       SUM(monitoredcapacity) AS monitored_wind
FROM tbl_wind_data
GROUP BY datetime;

CREATE VIEW IF NOT EXISTS v_solar AS
SELECT datetime,
       SUM(measured) AS measured_solar,
       SUM(monitoredcapacity) AS monitored_solar
FROM tbl_solar_data
GROUP BY datetime;

CREATE VIEW IF NOT EXISTS v_belpex AS
SELECT datetime, year, month, day, hour,
       price_eur_per_mwh AS price_belpex
FROM tbl_belpex_prices
GROUP BY datetime;
`
