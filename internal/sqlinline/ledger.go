package sqlinline

const QSelectCounters = `--sql b3913904-0f13-4d19-97b5-0d8379ebb402
select total_donations::text, unique_donors, funds_transferred::text, version, updated_at
from aggregate_counters
where id = $1::text;
`

const QUpdateCounters = `--sql 76118ffb-4c1c-4bb4-ba03-5edd48880fe8
update aggregate_counters
set total_donations = $2::numeric,
    unique_donors = $3::bigint,
    version = $4::bigint,
    updated_at = now()
where id = $1::text and version = $5::bigint;
`

const QInsertLedgerDonation = `--sql b941eefa-01d2-4f7f-b5dd-f76b7e50c220
insert into donations(amount, donor_id, donor_name, region, impact_type, anonymous, status, origin_country)
values ($1::numeric, nullif($2::text, ''), $3::text, $4::text, $5::text, $6::boolean, $7::text, $8::text)
returning id::text, seq, created_at;
`

const QNotifyLedgerChange = `--sql 7aeeb6e7-80a6-4161-bfda-428ba4de7cbb
select pg_notify($1::text, $2::text);
`

const QListRecentLedger = `--sql af40dc85-6200-43e7-879b-1fe5fb4c869a
select id::text, seq, amount::text, donor_id, donor_name, region, impact_type, anonymous, status, origin_country, created_at
from donations
order by seq desc
limit $1::int;
`

const QListLedgerByDonor = `--sql 8a890302-a15e-48ad-8b21-0fa57a1ca7b7
select id::text, seq, amount::text, donor_id, donor_name, region, impact_type, anonymous, status, origin_country, created_at
from donations
where donor_id = $1::text
order by seq desc;
`

const QProvisionCounters = `--sql 6ec8b41a-a405-4db3-b156-a3942a094f5a
insert into aggregate_counters(id, total_donations, unique_donors, funds_transferred, version, baseline_total, baseline_donors, updated_at)
values ($1::text, $2::numeric, $3::bigint, $4::numeric, 0, $2::numeric, $3::bigint, now())
on conflict (id) do nothing;
`

// QLedgerTotals backs the reconciliation audit; it runs through database/sql,
// where the marker line is an ordinary comment.
const QLedgerTotals = `--sql 044f343e-d12e-425e-8dff-169870474e04
select coalesce(sum(amount), 0)::text, count(*), count(distinct donor_id), coalesce(max(seq), 0)
from donations;
`

const QAuditCounters = `--sql 1d4b5449-59d5-49a3-b33a-4c43c9f730fc
select total_donations::text, unique_donors, version, baseline_total::text, baseline_donors
from aggregate_counters
where id = $1;
`
